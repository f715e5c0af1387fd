package repository

import (
	"context"

	"github.com/JuanCarJ/studioz-academy-sub000/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository reads the cart, course prices and buyer profile, and
// handles the no-payment enrollment path for free courses.
type CatalogRepository interface {
	FindCartCourses(ctx context.Context, userID uuid.UUID) ([]models.Course, error)
	FindProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	EnrollFree(ctx context.Context, userID uuid.UUID, courseIDs []uuid.UUID) error
}

type GormCatalogRepository struct {
	db *gorm.DB
}

func NewGormCatalogRepository(db *gorm.DB) CatalogRepository {
	return &GormCatalogRepository{db: db}
}

// FindCartCourses returns the published courses in the user's cart with
// their current prices, ordered by course id.
func (r *GormCatalogRepository) FindCartCourses(ctx context.Context, userID uuid.UUID) ([]models.Course, error) {
	var courses []models.Course
	if err := r.db.WithContext(ctx).
		Model(&models.Course{}).
		Joins("JOIN cart_items ON cart_items.course_id = courses.id").
		Where("cart_items.user_id = ? AND courses.is_published = ?", userID, true).
		Order("courses.id").
		Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *GormCatalogRepository) FindProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.WithContext(ctx).First(&p, "id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// EnrollFree enrolls the user in the given courses and drops them from the
// cart. Existing enrollments are left untouched.
func (r *GormCatalogRepository) EnrollFree(ctx context.Context, userID uuid.UUID, courseIDs []uuid.UUID) error {
	if len(courseIDs) == 0 {
		return nil
	}

	enrollments := make([]models.Enrollment, 0, len(courseIDs))
	for _, id := range courseIDs {
		enrollments = append(enrollments, models.Enrollment{
			UserID:   userID,
			CourseID: id,
			Source:   models.EnrollmentSourceFree,
		})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).Create(&enrollments).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND course_id IN ?", userID, courseIDs).
			Delete(&models.CartItem{}).Error
	})
}
