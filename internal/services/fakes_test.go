package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"danceBack/internal/auth"
	"danceBack/internal/cart"
	"danceBack/internal/models"
	"danceBack/internal/payments"
	"danceBack/internal/repositories"
	"danceBack/utils"
)

type fakeIdentity struct {
	tokens  map[string]auth.Identity
	revoked []string
	links   map[string]string
}

func (f *fakeIdentity) VerifyIDToken(_ context.Context, token string) (auth.Identity, error) {
	id, ok := f.tokens[token]
	if !ok {
		return auth.Identity{}, errors.New("token rejected")
	}
	return id, nil
}

func (f *fakeIdentity) RevokeSessions(_ context.Context, uid string) error {
	f.revoked = append(f.revoked, uid)
	return nil
}

func (f *fakeIdentity) PasswordResetLink(_ context.Context, email string) (string, error) {
	link, ok := f.links[email]
	if !ok {
		return "", errors.New("no user")
	}
	return link, nil
}

type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]models.User
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{byID: map[int64]models.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
		if u.ID > f.nextID {
			f.nextID = u.ID
		}
	}
	return f
}

func (f *fakeUsers) CreateUser(_ context.Context, user models.User) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == user.Username {
			return models.User{}, models.ErrDuplicateUsername
		}
		if u.FirebaseUID == user.FirebaseUID {
			return models.User{}, models.ErrDuplicateUser
		}
	}
	f.nextID++
	user.ID = f.nextID
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUsers) find(match func(models.User) bool) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if match(u) {
			return u, nil
		}
	}
	return models.User{}, models.ErrUserNotFound
}

func (f *fakeUsers) GetByUID(_ context.Context, uid string) (models.User, error) {
	return f.find(func(u models.User) bool { return u.FirebaseUID == uid })
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (models.User, error) {
	return f.find(func(u models.User) bool { return u.ID == id })
}

func (f *fakeUsers) GetByStripeCustomerID(_ context.Context, customerID string) (models.User, error) {
	return f.find(func(u models.User) bool { return customerID != "" && u.StripeCustomerID == customerID })
}

func (f *fakeUsers) UsernameExists(_ context.Context, username string) (bool, error) {
	_, err := f.find(func(u models.User) bool { return u.Username == username })
	return err == nil, nil
}

func (f *fakeUsers) update(id int64, fn func(*models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return models.ErrUserNotFound
	}
	fn(&u)
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) SetStripeCustomerID(_ context.Context, userID int64, customerID string) error {
	return f.update(userID, func(u *models.User) { u.StripeCustomerID = customerID })
}

func (f *fakeUsers) SetSubscriptionTier(_ context.Context, userID int64, tier string) error {
	return f.update(userID, func(u *models.User) { u.SubscriptionTier = tier })
}

func (f *fakeUsers) SetFCMToken(_ context.Context, userID int64, token string) error {
	return f.update(userID, func(u *models.User) { u.FCMToken = token })
}

type fakeOrders struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]models.Order
	writes int
}

func newFakeOrders(orders ...models.Order) *fakeOrders {
	f := &fakeOrders{orders: map[int64]models.Order{}}
	for _, o := range orders {
		f.orders[o.ID] = o
		if o.ID > f.nextID {
			f.nextID = o.ID
		}
	}
	return f
}

func (f *fakeOrders) Create(_ context.Context, order models.Order) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.writes++
	order.ID = f.nextID
	order.Status = models.OrderStatusCreated
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeOrders) MarkPending(_ context.Context, id int64, intentID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Status != models.OrderStatusCreated {
		return models.ErrStatusConflict
	}
	f.writes++
	o.Status = models.OrderStatusPending
	o.PaymentIntentID = intentID
	o.CheckoutSessionID = sessionID
	f.orders[id] = o
	return nil
}

func (f *fakeOrders) Transition(_ context.Context, id int64, from, to string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Status != from {
		return models.ErrStatusConflict
	}
	f.writes++
	o.Status = to
	if to == models.OrderStatusSucceeded || to == models.OrderStatusFailed {
		o.CompletedAt = &at
	}
	f.orders[id] = o
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id int64) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return models.Order{}, models.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrders) GetByCheckoutSessionID(_ context.Context, sessionID string) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.CheckoutSessionID == sessionID {
			return o, nil
		}
	}
	return models.Order{}, models.ErrOrderNotFound
}

func (f *fakeOrders) ListByUser(_ context.Context, userID int64, _, _ int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListRecent(context.Context, int, int) ([]models.Order, error) { return nil, nil }

func (f *fakeOrders) DeleteAbandoned(context.Context, time.Time) (int64, error) { return 0, nil }

func (f *fakeOrders) HasPurchased(_ context.Context, userID int64, itemType string, itemID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.UserID != userID || o.Status != models.OrderStatusSucceeded {
			continue
		}
		for _, it := range o.Items {
			if it.ItemType == itemType && it.ItemID == itemID {
				return true, nil
			}
		}
	}
	return false, nil
}

type fakeSubs struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]models.Subscription
	writes int
}

func newFakeSubs(subs ...models.Subscription) *fakeSubs {
	f := &fakeSubs{subs: map[int64]models.Subscription{}}
	for _, s := range subs {
		f.subs[s.ID] = s
		if s.ID > f.nextID {
			f.nextID = s.ID
		}
	}
	return f
}

func (f *fakeSubs) GetByID(_ context.Context, id int64) (models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return models.Subscription{}, models.ErrSubscriptionNotFound
	}
	return s, nil
}

func (f *fakeSubs) GetByStripeID(_ context.Context, stripeID string) (models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.StripeSubscriptionID == stripeID {
			return s, nil
		}
	}
	return models.Subscription{}, models.ErrSubscriptionNotFound
}

func (f *fakeSubs) ListByUser(_ context.Context, userID int64) ([]models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Subscription
	for _, s := range f.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubs) ListLapsed(_ context.Context, now time.Time) ([]models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Subscription
	for _, s := range f.subs {
		if s.CancelAtPeriodEnd && s.Status != models.SubscriptionStatusCancelled && s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubs) Upsert(_ context.Context, incoming models.Subscription, merge repositories.MergeFunc) (models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	for id, s := range f.subs {
		if s.StripeSubscriptionID == incoming.StripeSubscriptionID {
			current := s
			next := merge(&current, incoming)
			next.ID = id
			f.subs[id] = next
			return next, nil
		}
	}
	next := merge(nil, incoming)
	f.nextID++
	next.ID = f.nextID
	f.subs[next.ID] = next
	return next, nil
}

func (f *fakeSubs) SetCancelAtPeriodEnd(_ context.Context, id int64, cancel bool, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok || s.Status == models.SubscriptionStatusCancelled {
		return models.ErrSubscriptionCancelled
	}
	f.writes++
	s.CancelAtPeriodEnd = cancel
	s.CancelReason = ""
	if cancel {
		s.CancelReason = reason
	}
	f.subs[id] = s
	return nil
}

type fakeCatalog struct {
	courses   map[int64]models.Course
	resources map[int64]models.Resource
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		courses: map[int64]models.Course{
			1: {ID: 1, Title: "Salsa Foundations", Price: decimal.RequireFromString("49.00"), Published: true},
			2: {ID: 2, Title: "Draft Course", Price: decimal.RequireFromString("10.00")},
		},
		resources: map[int64]models.Resource{
			7: {ID: 7, Title: "Warm-up Playlist", Price: decimal.RequireFromString("5.50"), FileKey: "resources/7/playlist.pdf", Published: true},
		},
	}
}

func (f *fakeCatalog) ListCourses(context.Context, int, int) ([]models.Course, error) {
	var out []models.Course
	for _, c := range f.courses {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCatalog) GetCourse(_ context.Context, id int64) (models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return models.Course{}, models.ErrCourseNotFound
	}
	return c, nil
}

func (f *fakeCatalog) GetCourseOutline(ctx context.Context, id int64) (models.Course, error) {
	return f.GetCourse(ctx, id)
}

func (f *fakeCatalog) ListResources(context.Context, string, int, int) ([]models.Resource, error) {
	var out []models.Resource
	for _, r := range f.resources {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeCatalog) GetResource(_ context.Context, id int64) (models.Resource, error) {
	r, ok := f.resources[id]
	if !ok {
		return models.Resource{}, models.ErrResourceNotFound
	}
	return r, nil
}

type fakeEnrollments struct {
	enrolled map[[2]int64]int64
	err      error
}

func newFakeEnrollments() *fakeEnrollments {
	return &fakeEnrollments{enrolled: map[[2]int64]int64{}}
}

func (f *fakeEnrollments) Enroll(_ context.Context, userID, courseID, orderID int64) error {
	if f.err != nil {
		return f.err
	}
	key := [2]int64{userID, courseID}
	if _, ok := f.enrolled[key]; !ok {
		f.enrolled[key] = orderID
	}
	return nil
}

func (f *fakeEnrollments) ListByUser(_ context.Context, userID int64) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for k, orderID := range f.enrolled {
		if k[0] == userID {
			out = append(out, models.Enrollment{UserID: userID, CourseID: k[1], OrderID: orderID})
		}
	}
	return out, nil
}

type fakeLedger struct {
	events map[string]string
}

func newFakeLedger() *fakeLedger { return &fakeLedger{events: map[string]string{}} }

func (f *fakeLedger) Exists(_ context.Context, eventID string) (bool, error) {
	_, ok := f.events[eventID]
	return ok, nil
}

func (f *fakeLedger) MarkProcessed(_ context.Context, eventID, eventType string) error {
	f.events[eventID] = eventType
	return nil
}

func (f *fakeLedger) PruneBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeNotifier struct {
	welcomed      []models.User
	purchases     []models.Order
	resets        []string
	cancellations []models.Subscription
	statuses      []models.Order
}

func (f *fakeNotifier) Welcome(_ context.Context, user models.User) {
	f.welcomed = append(f.welcomed, user)
}

func (f *fakeNotifier) PurchaseConfirmation(_ context.Context, _ models.User, order models.Order) {
	f.purchases = append(f.purchases, order)
}

func (f *fakeNotifier) PasswordReset(_ context.Context, email, _ string) {
	f.resets = append(f.resets, email)
}

func (f *fakeNotifier) CancellationScheduled(_ context.Context, _ models.User, sub models.Subscription) {
	f.cancellations = append(f.cancellations, sub)
}

func (f *fakeNotifier) OrderStatusChanged(order models.Order) {
	f.statuses = append(f.statuses, order)
}

// fakeProcessor answers from canned values. Events are returned by
// ParseWebhook when the signature is "valid".
type fakeProcessor struct {
	event         payments.Event
	sessions      map[string]payments.CheckoutSession
	subscriptions map[string]payments.Subscription
	intents       []payments.PaymentIntentParams
	checkouts     []payments.CheckoutParams
	cancelCalls   []bool
	customers     int
	err           error
	parseErr      error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		sessions:      map[string]payments.CheckoutSession{},
		subscriptions: map[string]payments.Subscription{},
	}
}

func (f *fakeProcessor) CreatePaymentIntent(_ context.Context, p payments.PaymentIntentParams) (payments.PaymentIntent, error) {
	if f.err != nil {
		return payments.PaymentIntent{}, f.err
	}
	f.intents = append(f.intents, p)
	id := "pi_" + strconv.FormatInt(p.OrderID, 10)
	return payments.PaymentIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, p payments.CheckoutParams) (payments.CheckoutSession, error) {
	if f.err != nil {
		return payments.CheckoutSession{}, f.err
	}
	f.checkouts = append(f.checkouts, p)
	id := "cs_" + strconv.Itoa(len(f.checkouts))
	cs := payments.CheckoutSession{ID: id, URL: "https://checkout.test/" + id, Mode: p.Mode, Status: "open", Metadata: p.Metadata}
	f.sessions[id] = cs
	return cs, nil
}

func (f *fakeProcessor) GetCheckoutSession(_ context.Context, id string) (payments.CheckoutSession, error) {
	cs, ok := f.sessions[id]
	if !ok {
		return payments.CheckoutSession{}, &payments.ProcessorError{StatusCode: 404, Message: "no such session"}
	}
	return cs, nil
}

func (f *fakeProcessor) CreateCustomer(context.Context, string, string, int64) (string, error) {
	f.customers++
	return "cus_" + strconv.Itoa(f.customers), nil
}

func (f *fakeProcessor) GetSubscription(_ context.Context, id string) (payments.Subscription, error) {
	sub, ok := f.subscriptions[id]
	if !ok {
		return payments.Subscription{}, &payments.ProcessorError{StatusCode: 404, Message: "no such subscription"}
	}
	return sub, nil
}

func (f *fakeProcessor) SetCancelAtPeriodEnd(_ context.Context, id string, cancel bool) (payments.Subscription, error) {
	f.cancelCalls = append(f.cancelCalls, cancel)
	sub := f.subscriptions[id]
	sub.ID = id
	sub.CancelAtPeriodEnd = cancel
	f.subscriptions[id] = sub
	return sub, nil
}

func (f *fakeProcessor) ParseWebhook(_ []byte, signature string) (payments.Event, error) {
	if signature != "valid" {
		return payments.Event{}, payments.ErrInvalidSignature
	}
	return f.event, f.parseErr
}

// memoryCarts backs account carts in memory.
type memoryCarts struct {
	nextID int
	items  map[int64][]models.CartItem
}

func newMemoryCarts() *memoryCarts { return &memoryCarts{items: map[int64][]models.CartItem{}} }

func (m *memoryCarts) List(_ context.Context, userID int64) ([]models.CartItem, error) {
	return append([]models.CartItem{}, m.items[userID]...), nil
}

func (m *memoryCarts) Add(_ context.Context, userID int64, item models.CartItem) error {
	for i, it := range m.items[userID] {
		if it.SameProduct(item) {
			m.items[userID][i].Quantity += item.Quantity
			return nil
		}
	}
	m.nextID++
	item.ID = strconv.Itoa(m.nextID)
	m.items[userID] = append(m.items[userID], item)
	return nil
}

func (m *memoryCarts) Remove(_ context.Context, userID int64, id string) error {
	for i, it := range m.items[userID] {
		if it.ID == id {
			m.items[userID] = append(m.items[userID][:i], m.items[userID][i+1:]...)
			return nil
		}
	}
	return models.ErrCartItemNotFound
}

func (m *memoryCarts) SetQuantity(_ context.Context, userID int64, id string, qty int) error {
	for i, it := range m.items[userID] {
		if it.ID == id {
			m.items[userID][i].Quantity = qty
			return nil
		}
	}
	return models.ErrCartItemNotFound
}

func (m *memoryCarts) Clear(_ context.Context, userID int64) error {
	delete(m.items, userID)
	return nil
}

type testEnv struct {
	identity    *fakeIdentity
	users       *fakeUsers
	orders      *fakeOrders
	subs        *fakeSubs
	enrollments *fakeEnrollments
	ledger      *fakeLedger
	notifier    *fakeNotifier
	processor   *fakeProcessor
	accounts    *memoryCarts
	tokens      *utils.Manager
	catalog     *CatalogService
	carts       *CartService
}

var testPlans = []models.Plan{
	{Slug: "pro", Name: "Pro", Tier: "PRO", MonthlyPrice: "price_pro_m", YearlyPrice: "price_pro_y", TrialDays: 7},
}

func newTestEnv(t *testing.T, logger *zap.Logger) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	tokens, err := utils.NewManager("test-signing-key", time.Hour)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	env := &testEnv{
		identity:    &fakeIdentity{tokens: map[string]auth.Identity{}, links: map[string]string{}},
		users:       newFakeUsers(),
		orders:      newFakeOrders(),
		subs:        newFakeSubs(),
		enrollments: newFakeEnrollments(),
		ledger:      newFakeLedger(),
		notifier:    &fakeNotifier{},
		processor:   newFakeProcessor(),
		accounts:    newMemoryCarts(),
		tokens:      tokens,
	}
	env.catalog = NewCatalogService(newFakeCatalog(), 16, time.Minute)
	env.carts = NewCartService(cart.NewGuestStore(rdb, time.Hour), env.accounts, tokens, env.catalog, logger)
	return env
}

func (e *testEnv) userService(logger *zap.Logger) *UserService {
	return NewUserService(e.users, e.identity, e.carts, e.notifier, logger)
}

func (e *testEnv) subscriptionService(logger *zap.Logger) *SubscriptionService {
	return NewSubscriptionService(e.subs, e.users, e.processor, e.notifier, testPlans, "https://dance.test", logger)
}

func (e *testEnv) webhookService(logger *zap.Logger) *WebhookService {
	return NewWebhookService(WebhookServiceDeps{
		Processor:     e.processor,
		Ledger:        e.ledger,
		Orders:        e.orders,
		Users:         e.users,
		Enrollments:   e.enrollments,
		Carts:         e.carts,
		Subscriptions: e.subscriptionService(logger),
		Notifier:      e.notifier,
		Logger:        logger,
	})
}

func (e *testEnv) orderService(t *testing.T, logger *zap.Logger, storage Presigner) *OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      e.orders,
		Enrollments: e.enrollments,
		Catalog:     e.catalog,
		Carts:       e.carts,
		Processor:   e.processor,
		Storage:     storage,
		Currency:    "usd",
		FrontendURL: "https://dance.test",
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("order service: %v", err)
	}
	return svc
}
