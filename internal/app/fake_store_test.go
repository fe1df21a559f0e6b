package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

// fakeStore is an in-memory ledger. WithTx holds one mutex for the whole
// transaction, which serializes writers the way the zone row locks do, and
// restores a snapshot when fn fails.
type fakeStore struct {
	mu    sync.Mutex
	zones map[string]*domain.Zone
	holds []*domain.Hold
	carts map[string]fakeCart

	// lockErrs makes the next n GetZoneForUpdate calls fail as lock timeouts.
	lockErrs int
	// zoneErrs fails GetZoneForUpdate for specific zones.
	zoneErrs  map[string]error
	zoneLocks []string
	// ops records row-lock and row-write calls per transaction, each
	// transaction starting with opBegin.
	ops []string
}

const (
	opBegin      = "begin"
	opLockZone   = "lock-zone"
	opLockHolds  = "lock-hold-rows"
	opWriteHolds = "write-hold-rows"
)

func (f *fakeStore) record(ctx context.Context, op string) {
	if ctx.Value(fakeTxKey{}) != nil {
		f.ops = append(f.ops, op)
	}
}

// lockOrderViolations lists transactions that locked a zone row after they
// had already locked or written hold rows.
func lockOrderViolations(ops []string) [][]string {
	var bad [][]string
	var tx []string
	touchedHolds := false
	violated := false
	flush := func() {
		if violated {
			bad = append(bad, tx)
		}
		tx, touchedHolds, violated = nil, false, false
	}
	for _, op := range ops {
		if op == opBegin {
			flush()
		}
		tx = append(tx, op)
		switch op {
		case opLockHolds, opWriteHolds:
			touchedHolds = true
		case opLockZone:
			if touchedHolds {
				violated = true
			}
		}
	}
	flush()
	return bad
}

type fakeCart struct {
	userID string
	lines  []domain.CartLine
}

type fakeTxKey struct{}

func newFakeStore(zones ...domain.Zone) *fakeStore {
	f := &fakeStore{
		zones:    make(map[string]*domain.Zone),
		carts:    make(map[string]fakeCart),
		zoneErrs: make(map[string]error),
	}
	for i := range zones {
		z := zones[i]
		f.zones[z.ID] = &z
	}
	return f
}

func (f *fakeStore) addCart(cartID, userID string, lines ...domain.CartLine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range lines {
		lines[i].CartID = cartID
		lines[i].UserID = userID
		if z, ok := f.zones[lines[i].ZoneID]; ok {
			lines[i].EventID = z.EventID
		}
	}
	f.carts[cartID] = fakeCart{userID: userID, lines: lines}
}

func (f *fakeStore) addHold(h domain.Hold) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h.ID == "" {
		h.ID = newID()
	}
	f.holds = append(f.holds, &h)
}

func (f *fakeStore) zone(id string) domain.Zone {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.zones[id]
}

func (f *fakeStore) holdsWhere(pred func(domain.Hold) bool) []domain.Hold {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Hold
	for _, h := range f.holds {
		if pred(*h) {
			out = append(out, *h)
		}
	}
	return out
}

func (f *fakeStore) guard(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, opBegin)

	zones := make(map[string]domain.Zone, len(f.zones))
	for id, z := range f.zones {
		zones[id] = *z
	}
	holds := make([]domain.Hold, len(f.holds))
	for i, h := range f.holds {
		holds[i] = *h
	}

	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		f.zones = make(map[string]*domain.Zone, len(zones))
		for id := range zones {
			z := zones[id]
			f.zones[id] = &z
		}
		f.holds = make([]*domain.Hold, len(holds))
		for i := range holds {
			h := holds[i]
			f.holds[i] = &h
		}
		return err
	}
	return nil
}

func (f *fakeStore) ListCartLines(ctx context.Context, userID, cartID string) ([]domain.CartLine, error) {
	defer f.guard(ctx)()
	c, ok := f.carts[cartID]
	if !ok || c.userID != userID {
		return nil, domain.ErrCartNotFound
	}
	return append([]domain.CartLine(nil), c.lines...), nil
}

func (f *fakeStore) GetZoneForUpdate(ctx context.Context, zoneID string) (domain.Zone, error) {
	defer f.guard(ctx)()
	if f.lockErrs > 0 {
		f.lockErrs--
		return domain.Zone{}, domain.ErrTransientLock
	}
	if err := f.zoneErrs[zoneID]; err != nil {
		return domain.Zone{}, err
	}
	z, ok := f.zones[zoneID]
	if !ok {
		return domain.Zone{}, domain.ErrZoneNotFound
	}
	f.zoneLocks = append(f.zoneLocks, zoneID)
	f.record(ctx, opLockZone)
	return *z, nil
}

func (f *fakeStore) ExpireActiveHoldsForLines(ctx context.Context, userID string, cartLineIDs []string, now time.Time) ([]domain.Hold, error) {
	defer f.guard(ctx)()
	f.record(ctx, opWriteHolds)
	want := make(map[string]bool, len(cartLineIDs))
	for _, id := range cartLineIDs {
		want[id] = true
	}
	var out []domain.Hold
	for _, h := range f.holds {
		if h.UserID == userID && want[h.CartLineID] && h.Status.Active() {
			h.Status = domain.HoldStatusExpired
			out = append(out, *h)
		}
	}
	return out, nil
}

func (f *fakeStore) SumLivePending(ctx context.Context, zoneID string, now time.Time) (int, error) {
	defer f.guard(ctx)()
	return f.sumLivePending(zoneID, now), nil
}

func (f *fakeStore) sumLivePending(zoneID string, now time.Time) int {
	total := 0
	for _, h := range f.holds {
		if h.ZoneID == zoneID && h.LiveAt(now) {
			total += h.Quantity
		}
	}
	return total
}

func (f *fakeStore) NextQueuePosition(ctx context.Context, zoneID string) (int, error) {
	defer f.guard(ctx)()
	max := 0
	for _, h := range f.holds {
		if h.ZoneID == zoneID && h.Status == domain.HoldStatusWaiting && h.QueuePosition != nil && *h.QueuePosition > max {
			max = *h.QueuePosition
		}
	}
	return max + 1, nil
}

func (f *fakeStore) CreateHold(ctx context.Context, hold domain.Hold) error {
	defer f.guard(ctx)()
	f.record(ctx, opWriteHolds)
	for _, h := range f.holds {
		if h.CartLineID == hold.CartLineID && h.Status.Active() {
			return domain.ErrTransientLock
		}
	}
	f.holds = append(f.holds, &hold)
	return nil
}

func (f *fakeStore) HasLivePending(ctx context.Context, userID, cartID string, now time.Time) (bool, error) {
	defer f.guard(ctx)()
	for _, h := range f.holds {
		if h.UserID == userID && h.CartID == cartID && h.LiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListLivePending(ctx context.Context, userID, cartID string, now time.Time, forUpdate bool) ([]domain.Hold, error) {
	defer f.guard(ctx)()
	if forUpdate {
		f.record(ctx, opLockHolds)
	}
	var out []domain.Hold
	for _, h := range f.holds {
		if h.UserID == userID && h.CartID == cartID && h.LiveAt(now) {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (f *fakeStore) IncrementSold(ctx context.Context, zoneID string, qty int) error {
	defer f.guard(ctx)()
	z, ok := f.zones[zoneID]
	if !ok {
		return domain.ErrZoneNotFound
	}
	if z.Sold+qty > z.Quota {
		return domain.ErrOversold
	}
	z.Sold += qty
	return nil
}

func (f *fakeStore) TransitionHolds(ctx context.Context, holdIDs []string, from, to domain.HoldStatus, now time.Time) error {
	defer f.guard(ctx)()
	f.record(ctx, opWriteHolds)
	want := make(map[string]bool, len(holdIDs))
	for _, id := range holdIDs {
		want[id] = true
	}
	n := 0
	for _, h := range f.holds {
		if want[h.ID] && h.Status == from {
			h.Status = to
			n++
		}
	}
	if n != len(holdIDs) {
		return domain.ErrIllegalTransition
	}
	return nil
}

func (f *fakeStore) ExpireCartHolds(ctx context.Context, userID, cartID string, statuses []domain.HoldStatus, now time.Time) ([]domain.Hold, error) {
	defer f.guard(ctx)()
	f.record(ctx, opWriteHolds)
	var out []domain.Hold
	for _, h := range f.holds {
		if h.UserID != userID || h.CartID != cartID {
			continue
		}
		for _, st := range statuses {
			if h.Status == st {
				h.Status = domain.HoldStatusExpired
				out = append(out, *h)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ExpireLapsedPending(ctx context.Context, now time.Time) ([]domain.Hold, error) {
	defer f.guard(ctx)()
	var out []domain.Hold
	for _, h := range f.holds {
		if h.Status == domain.HoldStatusPending && !h.ExpiresAt.After(now) {
			h.Status = domain.HoldStatusExpired
			out = append(out, *h)
		}
	}
	return out, nil
}

func (f *fakeStore) ListZonesWithWaiting(ctx context.Context) ([]string, error) {
	defer f.guard(ctx)()
	seen := make(map[string]bool)
	var ids []string
	for _, h := range f.holds {
		if h.Status == domain.HoldStatusWaiting && !seen[h.ZoneID] {
			seen[h.ZoneID] = true
			ids = append(ids, h.ZoneID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) HeadOfQueue(ctx context.Context, zoneID string) (*domain.Hold, error) {
	defer f.guard(ctx)()
	f.record(ctx, opLockHolds)
	var head *domain.Hold
	for _, h := range f.holds {
		if h.ZoneID != zoneID || h.Status != domain.HoldStatusWaiting {
			continue
		}
		if head == nil || *h.QueuePosition < *head.QueuePosition {
			head = h
		}
	}
	if head == nil {
		return nil, nil
	}
	cp := *head
	return &cp, nil
}

func (f *fakeStore) PromoteHold(ctx context.Context, holdID string, expiresAt, now time.Time) error {
	defer f.guard(ctx)()
	f.record(ctx, opWriteHolds)
	for _, h := range f.holds {
		if h.ID == holdID && h.Status == domain.HoldStatusWaiting {
			h.Status = domain.HoldStatusPending
			h.ExpiresAt = &expiresAt
			h.PromotedAt = &now
			h.QueuePosition = nil
			return nil
		}
	}
	return domain.ErrIllegalTransition
}

func (f *fakeStore) ZoneAvailability(ctx context.Context, zoneID string, now time.Time) (domain.Availability, error) {
	defer f.guard(ctx)()
	z, ok := f.zones[zoneID]
	if !ok {
		return domain.Availability{}, domain.ErrZoneNotFound
	}
	return f.availability(*z, now), nil
}

func (f *fakeStore) EventAvailability(ctx context.Context, eventID string, now time.Time) ([]domain.Availability, error) {
	defer f.guard(ctx)()
	var out []domain.Availability
	for _, z := range f.zones {
		if z.EventID == eventID {
			out = append(out, f.availability(*z, now))
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrEventNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZoneID < out[j].ZoneID })
	return out, nil
}

func (f *fakeStore) availability(z domain.Zone, now time.Time) domain.Availability {
	pending := f.sumLivePending(z.ID, now)
	waiting := 0
	for _, h := range f.holds {
		if h.ZoneID == z.ID && h.Status == domain.HoldStatusWaiting {
			waiting += h.Quantity
		}
	}
	return domain.Availability{
		ZoneID:    z.ID,
		EventID:   z.EventID,
		Name:      z.Name,
		Quota:     z.Quota,
		Sold:      z.Sold,
		Pending:   pending,
		Waiting:   waiting,
		Available: z.Available(pending),
	}
}

// fakeSweepLock stands in for the cross-process advisory lock.
type fakeSweepLock struct {
	mu   sync.Mutex
	held bool
	err  error
}

func (l *fakeSweepLock) TryLock(context.Context) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, true, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.HoldEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events []domain.HoldEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) ofType(t domain.HoldEventType) []domain.HoldEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.HoldEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// invariantViolations lists zones where sold + live pending exceeds quota.
func (f *fakeStore) invariantViolations(now time.Time) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var bad []string
	for id, z := range f.zones {
		if z.Sold+f.sumLivePending(id, now) > z.Quota {
			bad = append(bad, id)
		}
	}
	return bad
}
