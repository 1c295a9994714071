// Package memory is a thread-safe in-memory implementation of store.Store.
// It is used by service tests and by local runs with store.driver=memory.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/store"
)

type usageKey struct {
	subscriptionID uuid.UUID
	featureKey     string
	periodStart    int64
	periodEnd      int64
}

func keyOf(k store.UsageKey) usageKey {
	return usageKey{
		subscriptionID: k.SubscriptionID,
		featureKey:     k.FeatureKey,
		periodStart:    k.PeriodStart.UnixNano(),
		periodEnd:      k.PeriodEnd.UnixNano(),
	}
}

type membershipKey struct {
	userID   uuid.UUID
	tenantID uuid.UUID
}

type state struct {
	plans          map[uuid.UUID]store.Plan
	subscriptions  map[uuid.UUID]store.Subscription
	features       map[uuid.UUID][]store.SubscriptionFeature
	usage          map[usageKey]store.SubscriptionUsage
	invoices       map[uuid.UUID]store.Invoice
	invoiceNumbers map[string]uuid.UUID
	payments       map[uuid.UUID]store.Payment
	paymentNumbers map[string]uuid.UUID
	memberships    map[membershipKey]store.Membership
}

func newState() *state {
	return &state{
		plans:          make(map[uuid.UUID]store.Plan),
		subscriptions:  make(map[uuid.UUID]store.Subscription),
		features:       make(map[uuid.UUID][]store.SubscriptionFeature),
		usage:          make(map[usageKey]store.SubscriptionUsage),
		invoices:       make(map[uuid.UUID]store.Invoice),
		invoiceNumbers: make(map[string]uuid.UUID),
		payments:       make(map[uuid.UUID]store.Payment),
		paymentNumbers: make(map[string]uuid.UUID),
		memberships:    make(map[membershipKey]store.Membership),
	}
}

// clone copies every map. Records are stored by value and replaced on update,
// so a shallow copy of each map is a full snapshot.
func (s *state) clone() *state {
	return &state{
		plans:          maps.Clone(s.plans),
		subscriptions:  maps.Clone(s.subscriptions),
		features:       maps.Clone(s.features),
		usage:          maps.Clone(s.usage),
		invoices:       maps.Clone(s.invoices),
		invoiceNumbers: maps.Clone(s.invoiceNumbers),
		payments:       maps.Clone(s.payments),
		paymentNumbers: maps.Clone(s.paymentNumbers),
		memberships:    maps.Clone(s.memberships),
	}
}

// Store keeps every table in maps guarded by a single mutex. A transaction holds the
// mutex for its whole duration, which makes it serializable.
type Store struct {
	mu    sync.Mutex
	data  *state
	clock func() time.Time
}

func New() *Store {
	return &Store{data: newState(), clock: time.Now}
}

// WithClock overrides the timestamp source used for created_at/updated_at.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// AddPlan seeds the plan catalog.
func (s *Store) AddPlan(plan *store.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *plan
	p.Features = append([]store.PlanFeature(nil), plan.Features...)
	s.data.plans[p.ID] = p
}

// AddMembership seeds the tenant membership view.
func (s *Store) AddMembership(userID, tenantID uuid.UUID, role store.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.memberships[membershipKey{userID, tenantID}] = store.Membership{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
	}
}

func (s *Store) repos(locker sync.Locker) *repositories {
	return &repositories{store: s, locker: locker}
}

func (s *Store) Plans() store.PlanRepository                 { return s.repos(&s.mu) }
func (s *Store) Subscriptions() store.SubscriptionRepository { return s.repos(&s.mu) }
func (s *Store) Features() store.FeatureRepository           { return s.repos(&s.mu) }
func (s *Store) Usage() store.UsageRepository                { return s.repos(&s.mu) }
func (s *Store) Invoices() store.InvoiceRepository           { return s.repos(&s.mu) }
func (s *Store) Payments() store.PaymentRepository           { return s.repos(&s.mu) }
func (s *Store) Memberships() store.MembershipRepository     { return s.repos(&s.mu) }

// RunTransaction runs fn with exclusive access and restores the previous state when fn fails.
func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if r := recover(); r != nil {
			s.data = snapshot
			panic(r)
		}

		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(ctx, &txRepositories{repos: s.repos(noopLocker{})})
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

type txRepositories struct {
	repos *repositories
}

func (t *txRepositories) Plans() store.PlanRepository                 { return t.repos }
func (t *txRepositories) Subscriptions() store.SubscriptionRepository { return t.repos }
func (t *txRepositories) Features() store.FeatureRepository           { return t.repos }
func (t *txRepositories) Usage() store.UsageRepository                { return t.repos }
func (t *txRepositories) Invoices() store.InvoiceRepository           { return t.repos }
func (t *txRepositories) Payments() store.PaymentRepository           { return t.repos }

// repositories implements every repository interface over the shared state.
// locker is the store mutex outside transactions and a no-op inside them.
type repositories struct {
	store  *Store
	locker sync.Locker
}

func (r *repositories) data() *state {
	return r.store.data
}

func (r *repositories) now() time.Time {
	return r.store.clock()
}

// ===== Plans =====

func (r *repositories) GetPlan(_ context.Context, id uuid.UUID) (*store.Plan, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	p, ok := r.data().plans[id]
	if !ok || p.DeletedAt != nil {
		return nil, apperr.NotFound("plan %s not found", id)
	}

	p.Features = append([]store.PlanFeature(nil), p.Features...)

	return &p, nil
}

func (r *repositories) ListPlans(_ context.Context, filter store.PlanFilter) ([]*store.Plan, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	var plans []*store.Plan
	for _, p := range r.data().plans {
		if p.DeletedAt != nil || (filter.OnlyActive && !p.IsActive) || (filter.OnlyPublic && !p.IsPublic) {
			continue
		}

		p := p
		p.Features = append([]store.PlanFeature(nil), p.Features...)
		plans = append(plans, &p)
	}

	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Price.Equal(plans[j].Price) {
			return plans[i].Name < plans[j].Name
		}
		return plans[i].Price.LessThan(plans[j].Price)
	})

	return plans, nil
}

// ===== Subscriptions =====

func (r *repositories) CreateSubscription(_ context.Context, sub *store.Subscription) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	if _, exists := r.data().subscriptions[sub.ID]; exists {
		return apperr.Conflict("subscription %s already exists", sub.ID)
	}

	if sub.Status.Live() {
		for _, other := range r.data().subscriptions {
			if other.TenantID == sub.TenantID && other.DeletedAt == nil && other.Status.Live() {
				return apperr.Conflict("tenant %s already has a live subscription", sub.TenantID)
			}
		}
	}

	now := r.now()
	sub.CreatedAt, sub.UpdatedAt = now, now

	stored := *sub
	stored.Metadata = maps.Clone(sub.Metadata)
	r.data().subscriptions[sub.ID] = stored

	return nil
}

func (r *repositories) GetSubscription(_ context.Context, id uuid.UUID) (*store.Subscription, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	return r.getSubscription(id)
}

func (r *repositories) GetSubscriptionForUpdate(ctx context.Context, id uuid.UUID) (*store.Subscription, error) {
	return r.GetSubscription(ctx, id)
}

func (r *repositories) GetSubscriptionForShare(ctx context.Context, id uuid.UUID) (*store.Subscription, error) {
	return r.GetSubscription(ctx, id)
}

func (r *repositories) getSubscription(id uuid.UUID) (*store.Subscription, error) {
	sub, ok := r.data().subscriptions[id]
	if !ok || sub.DeletedAt != nil {
		return nil, apperr.NotFound("subscription %s not found", id)
	}

	sub.Metadata = maps.Clone(sub.Metadata)

	return &sub, nil
}

func (r *repositories) FindTenantSubscription(
	_ context.Context,
	tenantID uuid.UUID,
	statuses []store.SubscriptionStatus,
) (*store.Subscription, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	var found *store.Subscription
	for _, sub := range r.data().subscriptions {
		if sub.TenantID != tenantID || sub.DeletedAt != nil || !hasStatus(statuses, sub.Status) {
			continue
		}

		if found == nil || sub.CreatedAt.After(found.CreatedAt) {
			sub := sub
			found = &sub
		}
	}

	if found == nil {
		return nil, apperr.NotFound("no subscription found for tenant %s", tenantID)
	}

	found.Metadata = maps.Clone(found.Metadata)

	return found, nil
}

func (r *repositories) ListTenantSubscriptions(_ context.Context, tenantID uuid.UUID) ([]*store.Subscription, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	var subs []*store.Subscription
	for _, sub := range r.data().subscriptions {
		if sub.TenantID != tenantID || sub.DeletedAt != nil {
			continue
		}

		sub := sub
		sub.Metadata = maps.Clone(sub.Metadata)
		subs = append(subs, &sub)
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })

	return subs, nil
}

func (r *repositories) UpdateSubscription(_ context.Context, sub *store.Subscription) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	existing, err := r.getSubscription(sub.ID)
	if err != nil {
		return err
	}

	if sub.Status.Live() && !existing.Status.Live() {
		for id, other := range r.data().subscriptions {
			if id != sub.ID && other.TenantID == sub.TenantID && other.DeletedAt == nil && other.Status.Live() {
				return apperr.Conflict("tenant %s already has a live subscription", sub.TenantID)
			}
		}
	}

	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = r.now()

	stored := *sub
	stored.Metadata = maps.Clone(sub.Metadata)
	r.data().subscriptions[sub.ID] = stored

	return nil
}

// LockTenant is a no-op: transactions already hold the store mutex.
func (r *repositories) LockTenant(context.Context, uuid.UUID) error {
	return nil
}

func hasStatus(statuses []store.SubscriptionStatus, status store.SubscriptionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}

	return false
}

// ===== Features =====

func (r *repositories) CreateSubscriptionFeatures(_ context.Context, features []store.SubscriptionFeature) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	now := r.now()
	for _, f := range features {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.CreatedAt = now

		existing := r.data().features[f.SubscriptionID]
		r.data().features[f.SubscriptionID] = append(append([]store.SubscriptionFeature(nil), existing...), f)
	}

	return nil
}

func (r *repositories) ListSubscriptionFeatures(_ context.Context, subscriptionID uuid.UUID) ([]store.SubscriptionFeature, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	return append([]store.SubscriptionFeature(nil), r.data().features[subscriptionID]...), nil
}

// ===== Usage =====

func (r *repositories) InsertUsageIfAbsent(_ context.Context, usage *store.SubscriptionUsage) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	k := keyOf(store.UsageKey{
		SubscriptionID: usage.SubscriptionID,
		FeatureKey:     usage.FeatureKey,
		PeriodStart:    usage.PeriodStart,
		PeriodEnd:      usage.PeriodEnd,
	})

	if existing, ok := r.data().usage[k]; ok && existing.DeletedAt == nil {
		return nil
	}

	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}

	now := r.now()
	usage.CreatedAt, usage.UpdatedAt = now, now
	r.data().usage[k] = *usage

	return nil
}

func (r *repositories) GetUsage(_ context.Context, key store.UsageKey) (*store.SubscriptionUsage, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	u, ok := r.data().usage[keyOf(key)]
	if !ok || u.DeletedAt != nil {
		return nil, apperr.NotFound("usage %q not found for subscription %s", key.FeatureKey, key.SubscriptionID)
	}

	return &u, nil
}

func (r *repositories) IncrementUsage(_ context.Context, key store.UsageKey, by int64) (*store.SubscriptionUsage, bool, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	k := keyOf(key)

	u, ok := r.data().usage[k]
	if !ok || u.DeletedAt != nil {
		return nil, false, apperr.NotFound("usage %q not found for subscription %s", key.FeatureKey, key.SubscriptionID)
	}

	if u.Limit != nil && u.UsageCount+by > *u.Limit {
		return &u, false, nil
	}

	u.UsageCount += by
	u.UpdatedAt = r.now()
	r.data().usage[k] = u

	return &u, true, nil
}

func (r *repositories) ListPeriodUsage(
	_ context.Context,
	subscriptionID uuid.UUID,
	periodStart, periodEnd time.Time,
) ([]*store.SubscriptionUsage, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	var out []*store.SubscriptionUsage
	for _, u := range r.data().usage {
		if u.SubscriptionID != subscriptionID || u.DeletedAt != nil {
			continue
		}

		if !u.PeriodStart.Equal(periodStart) || !u.PeriodEnd.Equal(periodEnd) {
			continue
		}

		u := u
		out = append(out, &u)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FeatureKey < out[j].FeatureKey })

	return out, nil
}

func (r *repositories) ListUsageHistory(_ context.Context, subscriptionID uuid.UUID, limit int) ([]*store.SubscriptionUsage, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	var out []*store.SubscriptionUsage
	for _, u := range r.data().usage {
		if u.SubscriptionID != subscriptionID || u.DeletedAt != nil {
			continue
		}

		u := u
		out = append(out, &u)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].FeatureKey < out[j].FeatureKey
		}
		return out[i].PeriodStart.After(out[j].PeriodStart)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// ===== Invoices =====

func (r *repositories) CreateInvoice(_ context.Context, invoice *store.Invoice) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, taken := r.data().invoiceNumbers[invoice.InvoiceNumber]; taken {
		return apperr.Conflict("invoice number %s already exists", invoice.InvoiceNumber)
	}

	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}

	now := r.now()
	invoice.CreatedAt, invoice.UpdatedAt = now, now

	for i := range invoice.Items {
		if invoice.Items[i].ID == uuid.Nil {
			invoice.Items[i].ID = uuid.New()
		}
		invoice.Items[i].InvoiceID = invoice.ID
		invoice.Items[i].CreatedAt = now
	}

	stored := *invoice
	stored.Items = append([]store.InvoiceItem(nil), invoice.Items...)
	r.data().invoices[invoice.ID] = stored
	r.data().invoiceNumbers[invoice.InvoiceNumber] = invoice.ID

	return nil
}

func (r *repositories) GetInvoice(_ context.Context, id uuid.UUID) (*store.Invoice, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	return r.getInvoice(id)
}

func (r *repositories) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (*store.Invoice, error) {
	return r.GetInvoice(ctx, id)
}

func (r *repositories) getInvoice(id uuid.UUID) (*store.Invoice, error) {
	inv, ok := r.data().invoices[id]
	if !ok || inv.DeletedAt != nil {
		return nil, apperr.NotFound("invoice %s not found", id)
	}

	inv.Items = append([]store.InvoiceItem(nil), inv.Items...)

	return &inv, nil
}

func (r *repositories) UpdateInvoice(_ context.Context, invoice *store.Invoice) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	existing, err := r.getInvoice(invoice.ID)
	if err != nil {
		return err
	}

	// only status and settlement fields are mutable
	existing.Status = invoice.Status
	existing.PaidAt = invoice.PaidAt
	existing.UpdatedAt = r.now()
	r.data().invoices[invoice.ID] = *existing

	invoice.UpdatedAt = existing.UpdatedAt

	return nil
}

func (r *repositories) ListTenantInvoices(_ context.Context, tenantID uuid.UUID, limit int) ([]*store.Invoice, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	var out []*store.Invoice
	for _, inv := range r.data().invoices {
		if inv.TenantID != tenantID || inv.DeletedAt != nil {
			continue
		}

		inv := inv
		inv.Items = append([]store.InvoiceItem(nil), inv.Items...)
		out = append(out, &inv)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// ===== Payments =====

func (r *repositories) CreatePayment(_ context.Context, payment *store.Payment) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, taken := r.data().paymentNumbers[payment.PaymentNumber]; taken {
		return apperr.Conflict("payment number %s already exists", payment.PaymentNumber)
	}

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	now := r.now()
	payment.CreatedAt, payment.UpdatedAt = now, now

	r.data().payments[payment.ID] = *payment
	r.data().paymentNumbers[payment.PaymentNumber] = payment.ID

	return nil
}

func (r *repositories) GetPayment(_ context.Context, id uuid.UUID) (*store.Payment, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	return r.getPayment(id)
}

func (r *repositories) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*store.Payment, error) {
	return r.GetPayment(ctx, id)
}

func (r *repositories) getPayment(id uuid.UUID) (*store.Payment, error) {
	p, ok := r.data().payments[id]
	if !ok || p.DeletedAt != nil {
		return nil, apperr.NotFound("payment %s not found", id)
	}

	return &p, nil
}

func (r *repositories) UpdatePayment(_ context.Context, payment *store.Payment) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	existing, err := r.getPayment(payment.ID)
	if err != nil {
		return err
	}

	existing.Status = payment.Status
	existing.RefundedAmount = payment.RefundedAmount
	existing.PaymentMethod = payment.PaymentMethod
	existing.TransactionID = payment.TransactionID
	existing.PaymentDate = payment.PaymentDate
	existing.FailureReason = payment.FailureReason
	existing.UpdatedAt = r.now()
	r.data().payments[payment.ID] = *existing

	payment.UpdatedAt = existing.UpdatedAt

	return nil
}

func (r *repositories) ListTenantPayments(_ context.Context, tenantID uuid.UUID, limit int) ([]*store.Payment, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	var out []*store.Payment
	for _, p := range r.data().payments {
		if p.TenantID != tenantID || p.DeletedAt != nil {
			continue
		}

		p := p
		out = append(out, &p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// ===== Memberships =====

func (r *repositories) GetMembership(_ context.Context, userID, tenantID uuid.UUID) (*store.Membership, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	m, ok := r.data().memberships[membershipKey{userID, tenantID}]
	if !ok {
		return nil, apperr.NotFound("membership not found")
	}

	return &m, nil
}
