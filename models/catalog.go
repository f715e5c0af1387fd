package models

import (
	"time"

	"github.com/google/uuid"
)

// Course is read at checkout for its current price. Catalog management
// lives elsewhere.
type Course struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Price       int64     `gorm:"not null;default:0" json:"price"`
	IsPublished bool      `gorm:"not null;default:false" json:"is_published"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFree reports whether the course is enrolled without payment.
func (c Course) IsFree() bool { return c.Price <= 0 }

// Profile holds the buyer details snapshotted into each order.
type Profile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FullName  string    `gorm:"type:varchar(255)" json:"full_name"`
	Email     string    `gorm:"type:varchar(255);not null" json:"email"`
	Phone     string    `gorm:"type:varchar(50)" json:"phone,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type CartItem struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_course" json:"user_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_course" json:"course_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	EnrollmentSourcePurchase = "purchase"
	EnrollmentSourceFree     = "free"
)

// Enrollment grants a user access to a course. (UserID, CourseID) is unique
// and every write is an insert-or-ignore.
type Enrollment struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course" json:"course_id"`
	Source    string     `gorm:"type:varchar(20);not null" json:"source"`
	OrderID   *uuid.UUID `gorm:"type:uuid;index" json:"order_id,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
