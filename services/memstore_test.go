package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/models"
	"github.com/JuanCarJ/studioz-academy-sub000/repository"

	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for Postgres. It keeps the guarantees
// the services rely on: unique reference, idempotency key and payload hash,
// the conditional status update, and insert-or-ignore enrollments.
type memStore struct {
	mu sync.Mutex

	orders      map[uuid.UUID]*models.Order
	events      []models.PaymentEvent
	enrollments map[[2]uuid.UUID]models.Enrollment
	cart        map[uuid.UUID]map[uuid.UUID]bool
	outbox      map[uuid.UUID]*models.EmailOutbox
	courses     map[uuid.UUID]models.Course
	profiles    map[uuid.UUID]models.Profile

	now func() time.Time

	createErr      error
	createItemsErr error
	applyErr       error
	findErr        error
	eventsErr      error
}

func newMemStore() *memStore {
	return &memStore{
		orders:      make(map[uuid.UUID]*models.Order),
		enrollments: make(map[[2]uuid.UUID]models.Enrollment),
		cart:        make(map[uuid.UUID]map[uuid.UUID]bool),
		outbox:      make(map[uuid.UUID]*models.EmailOutbox),
		courses:     make(map[uuid.UUID]models.Course),
		profiles:    make(map[uuid.UUID]models.Profile),
		now:         time.Now,
	}
}

func (s *memStore) Orders() repository.OrderRepository { return memOrders{s} }
func (s *memStore) Events() repository.PaymentEventRepository { return memEvents{s} }
func (s *memStore) Outbox() repository.OutboxRepository { return memOutbox{s} }
func (s *memStore) Catalog() repository.CatalogRepository { return memCatalog{s} }

// ---- seeding and inspection ----

func (s *memStore) addCourse(title string, price int64) models.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := models.Course{ID: uuid.New(), Title: title, Price: price, IsPublished: true}
	s.courses[c.ID] = c
	return c
}

func (s *memStore) addProfile(userID uuid.UUID, name, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = models.Profile{ID: userID, FullName: name, Email: email}
}

func (s *memStore) addToCart(userID uuid.UUID, courseIDs ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart[userID] == nil {
		s.cart[userID] = make(map[uuid.UUID]bool)
	}
	for _, id := range courseIDs {
		s.cart[userID][id] = true
	}
}

func (s *memStore) removeFromCart(userID uuid.UUID, courseID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cart[userID], courseID)
}

func (s *memStore) cartSize(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cart[userID])
}

// seedOrder stores a pending order for the given courses.
func (s *memStore) seedOrder(userID uuid.UUID, createdAt time.Time, courses ...models.Course) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &models.Order{
		ID:            uuid.New(),
		UserID:        userID,
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Currency:      models.DefaultCurrency,
		Status:        models.OrderStatusPending,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	o.Reference = "ORD-" + o.ID.String()[:8]
	for _, c := range courses {
		id := c.ID
		o.Items = append(o.Items, models.OrderItem{ID: uuid.New(), OrderID: o.ID, CourseID: &id, CourseTitle: c.Title, Price: c.Price})
		o.Subtotal += c.Price
	}
	o.Total = o.Subtotal
	s.orders[o.ID] = o
	return cloneOrder(o)
}

func (s *memStore) order(id uuid.UUID) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		return cloneOrder(o)
	}
	return nil
}

func (s *memStore) ordersFor(userID uuid.UUID) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memStore) eventsFor(orderID uuid.UUID) []models.PaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentEvent
	for _, e := range s.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) enrollmentsFor(userID uuid.UUID) []models.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Enrollment
	for k, e := range s.enrollments {
		if k[0] == userID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) outboxFor(orderID uuid.UUID) *models.EmailOutbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.outbox[orderID]; ok {
		cp := *e
		return &cp
	}
	return nil
}

func (s *memStore) outboxCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox)
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func (s *memStore) hashExists(hash string) bool {
	for _, e := range s.events {
		if e.PayloadHash == hash {
			return true
		}
	}
	return false
}

// ---- OrderRepository ----

type memOrders struct{ s *memStore }

func (r memOrders) Create(_ context.Context, order *models.Order) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, o := range s.orders {
		if o.Reference == order.Reference {
			return repository.ErrDuplicate
		}
		if order.IdempotencyKey != nil && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
			return repository.ErrDuplicate
		}
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r memOrders) CreateItems(_ context.Context, items []models.OrderItem) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createItemsErr != nil {
		return s.createItemsErr
	}
	for _, item := range items {
		o, ok := s.orders[item.OrderID]
		if !ok {
			return errors.New("foreign key violation")
		}
		item.ID = uuid.New()
		o.Items = append(o.Items, item)
	}
	return nil
}

func (r memOrders) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r memOrders) FindByReference(_ context.Context, reference string) (*models.Order, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, o := range s.orders {
		if o.Reference == reference {
			return cloneOrder(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memOrders) FindLatestPending(_ context.Context, userID uuid.UUID, since time.Time) (*models.Order, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Order
	for _, o := range s.orders {
		if o.UserID != userID || o.Status != models.OrderStatusPending || o.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneOrder(latest), nil
}

func (r memOrders) FindStalePending(_ context.Context, olderThan time.Time, limit int) ([]models.Order, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []models.Order
	for _, o := range s.orders {
		if o.Status == models.OrderStatusPending && o.CreatedAt.Before(olderThan) {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memOrders) Void(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return repository.ErrStatusConflict
	}
	o.Status = models.OrderStatusVoided
	o.IdempotencyKey = nil
	return nil
}

func (r memOrders) ApplyTransition(_ context.Context, t *repository.Transition) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}

	o, ok := s.orders[t.OrderID]
	if !ok || o.Status != t.From {
		return repository.ErrStatusConflict
	}
	if t.Event != nil && s.hashExists(t.Event.PayloadHash) {
		return repository.ErrDuplicate
	}

	o.Status = t.To
	o.IdempotencyKey = nil
	o.UpdatedAt = t.At
	if t.TransactionID != nil {
		o.TransactionID = t.TransactionID
	}
	if t.PaymentMethod != nil {
		o.PaymentMethod = t.PaymentMethod
	}
	if t.To == models.OrderStatusApproved {
		at := t.At
		o.ApprovedAt = &at
	}

	for _, e := range t.Enrollments {
		key := [2]uuid.UUID{e.UserID, e.CourseID}
		if _, exists := s.enrollments[key]; !exists {
			s.enrollments[key] = e
		}
	}
	if t.ClearCart {
		delete(s.cart, t.UserID)
	}
	if t.Event != nil {
		ev := *t.Event
		ev.ID = uuid.New()
		s.events = append(s.events, ev)
	}
	if t.Outbox != nil {
		if _, exists := s.outbox[t.Outbox.OrderID]; !exists {
			entry := *t.Outbox
			entry.ID = uuid.New()
			s.outbox[entry.OrderID] = &entry
		}
	}
	return nil
}

// ---- PaymentEventRepository ----

type memEvents struct{ s *memStore }

func (r memEvents) ExistsByHash(_ context.Context, payloadHash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.eventsErr != nil {
		return false, r.s.eventsErr
	}
	return r.s.hashExists(payloadHash), nil
}

func (r memEvents) Create(_ context.Context, event *models.PaymentEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.eventsErr != nil {
		return r.s.eventsErr
	}
	if r.s.hashExists(event.PayloadHash) {
		return repository.ErrDuplicate
	}
	event.ID = uuid.New()
	r.s.events = append(r.s.events, *event)
	return nil
}

func (r memEvents) FindByOrderID(_ context.Context, orderID uuid.UUID) ([]models.PaymentEvent, error) {
	return r.s.eventsFor(orderID), nil
}

// ---- OutboxRepository ----

type memOutbox struct{ s *memStore }

func (r memOutbox) FindDue(_ context.Context, now time.Time, limit int) ([]models.EmailOutbox, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.EmailOutbox
	for _, e := range r.s.outbox {
		if e.Status == models.OutboxStatusPending && !e.NextRetryAt.After(now) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(out[j].NextRetryAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memOutbox) Claim(_ context.Context, id uuid.UUID, now, leaseUntil time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.outbox {
		if e.ID == id && e.Status == models.OutboxStatusPending && !e.NextRetryAt.After(now) {
			e.NextRetryAt = leaseUntil
			return true, nil
		}
	}
	return false, nil
}

func (r memOutbox) MarkSent(_ context.Context, id uuid.UUID, messageID string, sentAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.outbox {
		if e.ID == id {
			e.Status = models.OutboxStatusSent
			e.Attempts++
			e.ProviderMessageID = &messageID
			e.SentAt = &sentAt
			e.LastError = nil
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r memOutbox) RecordFailure(_ context.Context, id uuid.UUID, attempts int, status string, nextRetryAt time.Time, lastErr string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.outbox {
		if e.ID == id {
			e.Attempts = attempts
			e.Status = status
			e.NextRetryAt = nextRetryAt
			e.LastError = &lastErr
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r memOutbox) Rearm(_ context.Context, orderID uuid.UUID, emailType string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.outbox[orderID]; ok {
		e.Status = models.OutboxStatusPending
		e.Attempts = 0
		e.NextRetryAt = now
		e.LastError = nil
		return nil
	}
	r.s.outbox[orderID] = &models.EmailOutbox{
		ID:          uuid.New(),
		OrderID:     orderID,
		EmailType:   emailType,
		Status:      models.OutboxStatusPending,
		NextRetryAt: now,
	}
	return nil
}

func (r memOutbox) FindByOrderID(_ context.Context, orderID uuid.UUID) ([]models.EmailOutbox, error) {
	if e := r.s.outboxFor(orderID); e != nil {
		return []models.EmailOutbox{*e}, nil
	}
	return nil, nil
}

// ---- CatalogRepository ----

type memCatalog struct{ s *memStore }

func (r memCatalog) FindCartCourses(_ context.Context, userID uuid.UUID) ([]models.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Course
	for id := range r.s.cart[userID] {
		if c, ok := r.s.courses[id]; ok && c.IsPublished {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r memCatalog) FindProfile(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r memCatalog) EnrollFree(_ context.Context, userID uuid.UUID, courseIDs []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range courseIDs {
		key := [2]uuid.UUID{userID, id}
		if _, exists := r.s.enrollments[key]; !exists {
			r.s.enrollments[key] = models.Enrollment{UserID: userID, CourseID: id, Source: models.EnrollmentSourceFree}
		}
		delete(r.s.cart[userID], id)
	}
	return nil
}

// approveTransition is the write set of approving order at the given time.
func approveTransition(order *models.Order, at time.Time) *repository.Transition {
	t := &repository.Transition{
		OrderID: order.ID,
		UserID:  order.UserID,
		From:    models.OrderStatusPending,
		To:      models.OrderStatusApproved,
		At:      at,
		Event: &models.PaymentEvent{
			OrderID:        order.ID,
			Source:         models.EventSourceWebhook,
			ExternalStatus: "APPROVED",
			MappedStatus:   models.OrderStatusApproved,
			PayloadHash:    "approve-" + order.ID.String(),
			IsApplied:      true,
			ProcessedAt:    at,
		},
		Outbox: &models.EmailOutbox{
			OrderID:     order.ID,
			EmailType:   models.EmailTypePurchaseConfirmation,
			Status:      models.OutboxStatusPending,
			NextRetryAt: at,
		},
	}
	return t
}
