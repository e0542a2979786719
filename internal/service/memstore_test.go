package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tableside/api/internal/database"
	"github.com/tableside/api/internal/enum"
)

// --- In-memory transactional store ---
//
// memDB keeps one committed state. Begin hands out a memTx holding a private
// copy; Commit swaps it in, Rollback drops it. Unique constraints are checked
// against both the committed state and the transaction's own writes, and
// surface as *pgconn.PgError the way PostgreSQL reports them.

type memState struct {
	tables   map[uuid.UUID]database.DiningTable
	sessions map[uuid.UUID]database.TableSession
	orders   map[uuid.UUID]database.Order
	items    []database.OrderItem
	mods     []database.OrderItemModifier
	payments map[uuid.UUID]database.Payment // keyed by order id
	menu     map[uuid.UUID]database.MenuItem
	options  map[uuid.UUID]database.GetModifierOptionRow
}

func newMemState() *memState {
	return &memState{
		tables:   make(map[uuid.UUID]database.DiningTable),
		sessions: make(map[uuid.UUID]database.TableSession),
		orders:   make(map[uuid.UUID]database.Order),
		payments: make(map[uuid.UUID]database.Payment),
		menu:     make(map[uuid.UUID]database.MenuItem),
		options:  make(map[uuid.UUID]database.GetModifierOptionRow),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.tables {
		c.tables[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.menu {
		c.menu[k] = v
	}
	for k, v := range s.options {
		c.options[k] = v
	}
	c.items = append([]database.OrderItem(nil), s.items...)
	c.mods = append([]database.OrderItemModifier(nil), s.mods...)
	return c
}

type memDB struct {
	mu        sync.Mutex
	state     *memState
	clock     time.Time
	commits   int
	rollbacks int

	// failOn makes the named store method return the error.
	failOn map[string]error
	// Hooks run inside the named store method before it touches state; they
	// receive the committed state and stand in for a concurrent transaction
	// that committed first.
	beforeCreateSession func(committed *memState)
	beforeCreateOrder   func(committed *memState)
	beforeUpdateStatus  func(txState *memState)
}

func newMemDB() *memDB {
	return &memDB{
		state:  newMemState(),
		clock:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		failOn: make(map[string]error),
	}
}

func (db *memDB) now() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

func (db *memDB) Begin(ctx context.Context) (pgx.Tx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &memTx{db: db, state: db.state.clone()}, nil
}

// snapshot returns a copy of the committed state for assertions.
func (db *memDB) snapshot() *memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.clone()
}

func (db *memDB) sessionStore(d database.DBTX) SessionStore { return &memStore{tx: d.(*memTx)} }
func (db *memDB) orderStore(d database.DBTX) OrderStore     { return &memStore{tx: d.(*memTx)} }
func (db *memDB) paymentStore(d database.DBTX) PaymentStore { return &memStore{tx: d.(*memTx)} }

// --- fixtures ---

func (db *memDB) addTable(active bool) database.DiningTable {
	db.mu.Lock()
	defer db.mu.Unlock()
	t := database.DiningTable{
		ID:        uuid.New(),
		Name:      "T" + uuid.NewString()[:4],
		Capacity:  4,
		IsActive:  active,
		CreatedAt: db.clock,
		UpdatedAt: db.clock,
	}
	db.state.tables[t.ID] = t
	return t
}

func (db *memDB) addOpenSession(tableID uuid.UUID) database.TableSession {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := database.TableSession{ID: uuid.New(), TableID: tableID, Status: enum.SessionStatusOpen, OpenedAt: db.now()}
	db.state.sessions[s.ID] = s
	return s
}

func (db *memDB) addMenuItem(price string) database.MenuItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	m := database.MenuItem{ID: uuid.New(), Name: "item", Price: makeNumeric(price), IsAvailable: true, CreatedAt: db.clock}
	db.state.menu[m.ID] = m
	return m
}

func (db *memDB) addModifierOption(menuItemID, groupID uuid.UUID, delta string) database.GetModifierOptionRow {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := database.GetModifierOptionRow{ID: uuid.New(), GroupID: groupID, Name: "opt", PriceDelta: makeNumeric(delta), MenuItemID: menuItemID}
	db.state.options[o.ID] = o
	return o
}

func (db *memDB) setOrderStatus(orderID uuid.UUID, status string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.state.orders[orderID]
	o.Status = status
	db.state.orders[orderID] = o
}

// --- memTx implements pgx.Tx. Only Commit and Rollback are meaningful. ---

type memTx struct {
	db    *memDB
	state *memState
	done  bool
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.state = t.state
	t.db.commits++
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.rollbacks++
	return nil
}

func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (t *memTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (t *memTx) Conn() *pgx.Conn { panic("not implemented") }

// --- memStore implements SessionStore, OrderStore and PaymentStore. ---

type memStore struct {
	tx *memTx
}

func (s *memStore) st() *memState { return s.tx.state }

func (s *memStore) fail(method string) error {
	s.tx.db.mu.Lock()
	defer s.tx.db.mu.Unlock()
	return s.tx.db.failOn[method]
}

func (s *memStore) now() time.Time {
	s.tx.db.mu.Lock()
	defer s.tx.db.mu.Unlock()
	return s.tx.db.now()
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

func (s *memStore) GetTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error) {
	if err := s.fail("GetTable"); err != nil {
		return database.DiningTable{}, err
	}
	t, ok := s.st().tables[id]
	if !ok {
		return database.DiningTable{}, pgx.ErrNoRows
	}
	return t, nil
}

func (s *memStore) GetOpenSessionByTable(ctx context.Context, tableID uuid.UUID) (database.TableSession, error) {
	for _, sess := range s.st().sessions {
		if sess.TableID == tableID && sess.Status == enum.SessionStatusOpen {
			return sess, nil
		}
	}
	return database.TableSession{}, pgx.ErrNoRows
}

func hasOpenSession(st *memState, tableID uuid.UUID) bool {
	for _, sess := range st.sessions {
		if sess.TableID == tableID && sess.Status == enum.SessionStatusOpen {
			return true
		}
	}
	return false
}

func (s *memStore) CreateSession(ctx context.Context, tableID uuid.UUID) (database.TableSession, error) {
	db := s.tx.db
	db.mu.Lock()
	if hook := db.beforeCreateSession; hook != nil {
		db.beforeCreateSession = nil
		hook(db.state)
	}
	conflict := hasOpenSession(db.state, tableID)
	db.mu.Unlock()
	if conflict || hasOpenSession(s.st(), tableID) {
		return database.TableSession{}, uniqueViolation(constraintOneOpenSession)
	}
	sess := database.TableSession{ID: uuid.New(), TableID: tableID, Status: enum.SessionStatusOpen, OpenedAt: s.now()}
	s.st().sessions[sess.ID] = sess
	return sess, nil
}

func (s *memStore) GetSession(ctx context.Context, id uuid.UUID) (database.TableSession, error) {
	sess, ok := s.st().sessions[id]
	if !ok {
		return database.TableSession{}, pgx.ErrNoRows
	}
	return sess, nil
}

func (s *memStore) GetSessionForShare(ctx context.Context, id uuid.UUID) (database.TableSession, error) {
	return s.GetSession(ctx, id)
}

func (s *memStore) CloseSession(ctx context.Context, id uuid.UUID) (database.TableSession, error) {
	if err := s.fail("CloseSession"); err != nil {
		return database.TableSession{}, err
	}
	sess, ok := s.st().sessions[id]
	if !ok || sess.Status != enum.SessionStatusOpen {
		return database.TableSession{}, pgx.ErrNoRows
	}
	sess.Status = enum.SessionStatusClosed
	sess.EndedAt = pgtype.Timestamptz{Time: s.now(), Valid: true}
	s.st().sessions[id] = sess
	return sess, nil
}

func (s *memStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := s.st().orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (s *memStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *memStore) GetOrderBySession(ctx context.Context, sessionID uuid.UUID) (database.Order, error) {
	for _, o := range s.st().orders {
		if o.SessionID == sessionID {
			return o, nil
		}
	}
	return database.Order{}, pgx.ErrNoRows
}

func (s *memStore) GetOrderBySessionForUpdate(ctx context.Context, sessionID uuid.UUID) (database.Order, error) {
	return s.GetOrderBySession(ctx, sessionID)
}

func hasOrderForSession(st *memState, sessionID uuid.UUID) bool {
	for _, o := range st.orders {
		if o.SessionID == sessionID {
			return true
		}
	}
	return false
}

func (s *memStore) CreateOrder(ctx context.Context, sessionID uuid.UUID) (database.Order, error) {
	db := s.tx.db
	db.mu.Lock()
	if hook := db.beforeCreateOrder; hook != nil {
		db.beforeCreateOrder = nil
		hook(db.state)
	}
	conflict := hasOrderForSession(db.state, sessionID)
	db.mu.Unlock()
	if conflict || hasOrderForSession(s.st(), sessionID) {
		return database.Order{}, uniqueViolation(constraintOrderSession)
	}
	now := s.now()
	o := database.Order{
		ID:          uuid.New(),
		SessionID:   sessionID,
		Status:      enum.OrderStatusReceived,
		TotalAmount: makeNumeric("0"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.st().orders[o.ID] = o
	return o, nil
}

func (s *memStore) IncrementOrderTotal(ctx context.Context, arg database.IncrementOrderTotalParams) (database.Order, error) {
	if err := s.fail("IncrementOrderTotal"); err != nil {
		return database.Order{}, err
	}
	o, ok := s.st().orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.TotalAmount = decimalToNumeric(numericToDecimal(o.TotalAmount).Add(numericToDecimal(arg.Delta)))
	o.Status = enum.OrderStatusReceived
	o.UpdatedAt = s.now()
	s.st().orders[o.ID] = o
	return o, nil
}

func (s *memStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	db := s.tx.db
	db.mu.Lock()
	if hook := db.beforeUpdateStatus; hook != nil {
		db.beforeUpdateStatus = nil
		hook(s.st())
	}
	db.mu.Unlock()
	o, ok := s.st().orders[arg.ID]
	if !ok || o.Status != arg.FromStatus {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	o.UpdatedAt = s.now()
	if arg.Status == enum.OrderStatusCompleted {
		o.CompletedAt = pgtype.Timestamptz{Time: o.UpdatedAt, Valid: true}
	}
	s.st().orders[o.ID] = o
	return o, nil
}

func (s *memStore) SetBillRequested(ctx context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := s.st().orders[id]
	if !ok || isTerminal(o.Status) {
		return database.Order{}, pgx.ErrNoRows
	}
	o.BillRequested = true
	o.UpdatedAt = s.now()
	s.st().orders[id] = o
	return o, nil
}

func (s *memStore) CompleteOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if err := s.fail("CompleteOrder"); err != nil {
		return database.Order{}, err
	}
	o, ok := s.st().orders[id]
	if !ok || isTerminal(o.Status) {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = enum.OrderStatusCompleted
	o.UpdatedAt = s.now()
	o.CompletedAt = pgtype.Timestamptz{Time: o.UpdatedAt, Valid: true}
	s.st().orders[id] = o
	return o, nil
}

func (s *memStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	var out []database.Order
	for _, o := range s.st().orders {
		if arg.Status.Valid {
			if o.Status != arg.Status.String {
				continue
			}
		} else if isTerminal(o.Status) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if int(arg.Offset) >= len(out) {
		return []database.Order{}, nil
	}
	out = out[arg.Offset:]
	if int(arg.Limit) < len(out) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (s *memStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	if err := s.fail("CreateOrderItem"); err != nil {
		return database.OrderItem{}, err
	}
	item := database.OrderItem{
		ID:         uuid.New(),
		OrderID:    arg.OrderID,
		MenuItemID: arg.MenuItemID,
		Quantity:   arg.Quantity,
		UnitPrice:  arg.UnitPrice,
		Notes:      arg.Notes,
		CreatedAt:  s.now(),
	}
	s.st().items = append(s.st().items, item)
	return item, nil
}

func (s *memStore) CreateOrderItemModifier(ctx context.Context, arg database.CreateOrderItemModifierParams) (database.OrderItemModifier, error) {
	m := database.OrderItemModifier{
		ID:               uuid.New(),
		OrderItemID:      arg.OrderItemID,
		ModifierGroupID:  arg.ModifierGroupID,
		ModifierOptionID: arg.ModifierOptionID,
		PriceDelta:       arg.PriceDelta,
	}
	s.st().mods = append(s.st().mods, m)
	return m, nil
}

func (s *memStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	var out []database.OrderItem
	for _, item := range s.st().items {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memStore) ListOrderItemModifiersByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemModifier, error) {
	owned := make(map[uuid.UUID]bool)
	for _, item := range s.st().items {
		if item.OrderID == orderID {
			owned[item.ID] = true
		}
	}
	var out []database.OrderItemModifier
	for _, m := range s.st().mods {
		if owned[m.OrderItemID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (database.Payment, error) {
	p, ok := s.st().payments[orderID]
	if !ok {
		return database.Payment{}, pgx.ErrNoRows
	}
	return p, nil
}

func (s *memStore) CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
	if err := s.fail("CreatePayment"); err != nil {
		return database.Payment{}, err
	}
	if _, ok := s.st().payments[arg.OrderID]; ok {
		return database.Payment{}, uniqueViolation("payments_order_id_key")
	}
	now := s.now()
	p := database.Payment{
		ID:             uuid.New(),
		OrderID:        arg.OrderID,
		Amount:         arg.Amount,
		Method:         arg.Method,
		Status:         arg.Status,
		ClientSecret:   arg.ClientSecret,
		ExternalRef:    arg.ExternalRef,
		AmountReceived: arg.AmountReceived,
		ChangeAmount:   arg.ChangeAmount,
		DiscountAmount: arg.DiscountAmount,
		TipAmount:      arg.TipAmount,
		CreatedAt:      now,
	}
	if arg.Status == enum.PaymentStatusPaid {
		p.PaidAt = pgtype.Timestamptz{Time: now, Valid: true}
	}
	s.st().payments[arg.OrderID] = p
	return p, nil
}

func (s *memStore) MarkPaymentPaid(ctx context.Context, arg database.MarkPaymentPaidParams) (database.Payment, error) {
	for orderID, p := range s.st().payments {
		if p.ID != arg.ID {
			continue
		}
		if p.Status != enum.PaymentStatusPending {
			return database.Payment{}, pgx.ErrNoRows
		}
		p.Status = enum.PaymentStatusPaid
		p.PaidAt = pgtype.Timestamptz{Time: s.now(), Valid: true}
		p.Method = arg.Method
		p.Amount = arg.Amount
		if arg.ExternalRef.Valid {
			p.ExternalRef = arg.ExternalRef
		}
		p.AmountReceived = arg.AmountReceived
		p.ChangeAmount = arg.ChangeAmount
		p.DiscountAmount = arg.DiscountAmount
		p.TipAmount = arg.TipAmount
		s.st().payments[orderID] = p
		return p, nil
	}
	return database.Payment{}, pgx.ErrNoRows
}

func (s *memStore) ReissuePaymentIntent(ctx context.Context, arg database.ReissuePaymentIntentParams) (database.Payment, error) {
	for orderID, p := range s.st().payments {
		if p.ID != arg.ID {
			continue
		}
		if p.Status != enum.PaymentStatusPending {
			return database.Payment{}, pgx.ErrNoRows
		}
		p.Amount = arg.Amount
		p.Method = arg.Method
		p.ClientSecret = arg.ClientSecret
		p.ExternalRef = arg.ExternalRef
		s.st().payments[orderID] = p
		return p, nil
	}
	return database.Payment{}, pgx.ErrNoRows
}

func (s *memStore) GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error) {
	m, ok := s.st().menu[id]
	if !ok {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	return m, nil
}

func (s *memStore) GetModifierOption(ctx context.Context, id uuid.UUID) (database.GetModifierOptionRow, error) {
	o, ok := s.st().options[id]
	if !ok {
		return database.GetModifierOptionRow{}, pgx.ErrNoRows
	}
	return o, nil
}

// --- Notifier recorder ---

type recordedEvent struct {
	Event     string
	SessionID uuid.UUID
	Payload   any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Publish(ctx context.Context, event string, sessionID uuid.UUID, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{Event: event, SessionID: sessionID, Payload: payload})
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Event
	}
	return out
}

func (n *recordingNotifier) last() recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	d := numericToDecimal(n)
	exp, _ := decimal.NewFromString(expected)
	return d.Equal(exp)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func cartLine(menuItemID uuid.UUID, qty int32, price string) CartLine {
	return CartLine{MenuItemID: menuItemID, Quantity: qty, UnitPrice: dec(price)}
}

type fixture struct {
	db       *memDB
	notifier *recordingNotifier
	sessions *SessionService
	orders   *OrderService
	payments *PaymentService
}

func newFixture(orderOpts ...OrderOption) *fixture {
	db := newMemDB()
	n := &recordingNotifier{}
	return &fixture{
		db:       db,
		notifier: n,
		sessions: NewSessionService(db, db.sessionStore),
		orders:   NewOrderService(db, db.orderStore, n, orderOpts...),
		payments: NewPaymentService(db, db.paymentStore, stubGateway{method: enum.PaymentMethodStripe}, n),
	}
}

// openSession seeds an active table and opens its session through the service.
func (f *fixture) openSession(ctx context.Context) database.TableSession {
	table := f.db.addTable(true)
	sess, err := f.sessions.GetOrOpenSession(ctx, table.ID)
	if err != nil {
		panic(err)
	}
	return sess
}
