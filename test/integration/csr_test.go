package integration_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/club-seat-reservations/internal/adapters/crdb"
	"github.com/robertarktes/club-seat-reservations/internal/booking"
	"github.com/robertarktes/club-seat-reservations/internal/domain"
	"github.com/robertarktes/club-seat-reservations/internal/observability"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// fakeDirectory stands in for the external club/place catalog.
type fakeDirectory struct {
	mu        sync.Mutex
	operators map[uuid.UUID]*uuid.UUID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{operators: make(map[uuid.UUID]*uuid.UUID)}
}

func (d *fakeDirectory) addPlace(operator *uuid.UUID) uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := uuid.New()
	d.operators[id] = operator
	return id
}

func (d *fakeDirectory) PlaceExists(ctx context.Context, id uuid.UUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.operators[id]
	return ok, nil
}

func (d *fakeDirectory) ResolveOperator(ctx context.Context, placeID uuid.UUID) (*uuid.UUID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	op, ok := d.operators[placeID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return op, nil
}

func (d *fakeDirectory) GetPlace(ctx context.Context, id uuid.UUID) (*domain.PlaceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	op, ok := d.operators[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.PlaceInfo{ID: id, ClubName: "Test Club", TariffName: "standard", HourlyCost: 120, OperatorID: op}, nil
}

type env struct {
	repo *crdb.Repository
	pool *pgxpool.Pool
	dir  *fakeDirectory
	svc  *booking.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}
	pool, err := pgxpool.New(ctx, dsn+"/csr?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, "CREATE DATABASE IF NOT EXISTS csr"); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, crdb.Schema); err != nil {
		t.Fatal(err)
	}

	repo := crdb.NewRepository(pool)
	dir := newFakeDirectory()
	svc := booking.NewService(repo, dir, nil, nil, 5*time.Minute, time.Minute, observability.NewLogger())
	return &env{repo: repo, pool: pool, dir: dir, svc: svc}
}

func (e *env) createAccount(t *testing.T, balance float64) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	if _, err := e.pool.Exec(context.Background(), "INSERT INTO accounts (user_id, balance) VALUES ($1, $2)", userID, balance); err != nil {
		t.Fatal(err)
	}
	return userID
}

func slot(hour, min int) time.Time {
	return time.Date(2025, 11, 3, hour, min, 0, 0, time.UTC)
}

func TestReserve_OverlapAndBoundary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	op := uuid.New()
	placeID := e.dir.addPlace(&op)
	userID := uuid.New()

	if _, err := e.svc.Reserve(ctx, placeID, userID, slot(10, 0), 30*time.Minute); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	_, err := e.svc.Reserve(ctx, placeID, uuid.New(), slot(10, 15), 30*time.Minute)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("overlapping reserve: got %v, want ErrConflict", err)
	}

	// half-open boundary: [10:30, 11:00) touches [10:00, 10:30) only at
	// the shared instant and must succeed
	if _, err := e.svc.Reserve(ctx, placeID, uuid.New(), slot(10, 30), 30*time.Minute); err != nil {
		t.Errorf("boundary reserve: got %v, want success", err)
	}

	_, err = e.svc.Reserve(ctx, uuid.New(), userID, slot(10, 0), 30*time.Minute)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown place: got %v, want ErrNotFound", err)
	}
}

func TestReserve_ConcurrentSameSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	placeID := e.dir.addPlace(nil)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := e.svc.Reserve(ctx, placeID, uuid.New(), slot(14, 0), 60*time.Minute)
			results <- err
		}()
	}

	var succeeded, conflicted int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSerializationFailure):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicted != 1 {
		t.Errorf("got %d successes and %d conflicts, want exactly 1 and 1", succeeded, conflicted)
	}

	var live int
	err := e.pool.QueryRow(ctx, `
		SELECT count(*) FROM reservations
		WHERE place_id = $1 AND status IN ('provisional', 'active')
	`, placeID).Scan(&live)
	if err != nil {
		t.Fatal(err)
	}
	if live != 1 {
		t.Errorf("%d live reservations visible, want 1", live)
	}
}

func TestCheckout_SplitsEvenlyAndDebitsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	op := uuid.New()
	placeA := e.dir.addPlace(&op)
	placeB := e.dir.addPlace(&op)
	userID := e.createAccount(t, 500)

	idA, err := e.svc.Reserve(ctx, placeA, userID, slot(10, 0), 60*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	idB, err := e.svc.Reserve(ctx, placeB, userID, slot(10, 0), 60*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.svc.ConfirmBatch(ctx, userID, []uuid.UUID{idA, idB}, 200); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	balance, err := e.repo.GetBalance(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 300 {
		t.Errorf("balance = %v, want 300 (debited once for the aggregate)", balance)
	}

	for _, id := range []uuid.UUID{idA, idB} {
		res, err := e.repo.GetReservation(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != domain.StatusActive {
			t.Errorf("reservation %s status = %s, want active", id, res.Status)
		}

		var amount float64
		err = e.pool.QueryRow(ctx,
			"SELECT amount FROM payments WHERE reservation_id = $1 AND status = 'paid'", id).Scan(&amount)
		if err != nil {
			t.Fatalf("payment row for %s: %v", id, err)
		}
		if amount != 100 {
			t.Errorf("payment amount = %v, want 100 (even split)", amount)
		}
	}
}

func TestCheckout_FailuresLeaveNothingBehind(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	op := uuid.New()
	managed := e.dir.addPlace(&op)
	unmanaged := e.dir.addPlace(nil)
	userID := e.createAccount(t, 50)

	idManaged, err := e.svc.Reserve(ctx, managed, userID, slot(10, 0), 60*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	// insufficient funds: nothing is debited, nothing is promoted
	err = e.svc.ConfirmBatch(ctx, userID, []uuid.UUID{idManaged}, 200)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	balance, _ := e.repo.GetBalance(ctx, userID)
	if balance != 50 {
		t.Errorf("balance = %v, want untouched 50", balance)
	}
	res, _ := e.repo.GetReservation(ctx, idManaged)
	if res.Status != domain.StatusProvisional {
		t.Errorf("status = %s, want provisional after failed checkout", res.Status)
	}

	// incomplete routing: one hold's place has no operator, the whole
	// batch fails
	idUnmanaged, err := e.svc.Reserve(ctx, unmanaged, userID, slot(12, 0), 60*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	err = e.svc.ConfirmBatch(ctx, userID, []uuid.UUID{idManaged, idUnmanaged}, 40)
	if !errors.Is(err, domain.ErrIncompleteRouting) {
		t.Fatalf("got %v, want ErrIncompleteRouting", err)
	}
	balance, _ = e.repo.GetBalance(ctx, userID)
	if balance != 50 {
		t.Errorf("balance = %v, want untouched 50", balance)
	}
}

func TestCancel_RefundsNinetyPercent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	op := uuid.New()
	placeID := e.dir.addPlace(&op)
	userID := e.createAccount(t, 500)

	id, err := e.svc.Reserve(ctx, placeID, userID, slot(10, 0), 60*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.svc.ConfirmBatch(ctx, userID, []uuid.UUID{id}, 200); err != nil {
		t.Fatal(err)
	}

	refund, err := e.svc.Cancel(ctx, id, userID)
	if err != nil {
		t.Fatal(err)
	}
	if refund != 180 {
		t.Errorf("refund = %v, want 180 (90%% of 200)", refund)
	}

	balance, err := e.repo.GetBalance(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	// 500 before checkout, minus the 10% fee on 200
	if balance != 480 {
		t.Errorf("balance = %v, want 480", balance)
	}

	res, err := e.repo.GetReservation(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want cancelled", res.Status)
	}

	var payStatus string
	if err := e.pool.QueryRow(ctx, "SELECT status FROM payments WHERE reservation_id = $1", id).Scan(&payStatus); err != nil {
		t.Fatal(err)
	}
	if payStatus != "refunded" {
		t.Errorf("payment status = %s, want refunded", payStatus)
	}

	// second cancel must fail cleanly
	if _, err := e.svc.Cancel(ctx, id, userID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("double cancel: got %v, want ErrInvalidState", err)
	}
}

func TestCancel_WithoutPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	placeID := e.dir.addPlace(nil)
	userID := e.createAccount(t, 100)

	id, err := e.svc.Reserve(ctx, placeID, userID, slot(10, 0), 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.svc.Cancel(ctx, id, userID); !errors.Is(err, domain.ErrNoPayment) {
		t.Errorf("unpaid cancel: got %v, want ErrNoPayment", err)
	}
	if _, err := e.svc.Cancel(ctx, id, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign cancel: got %v, want ErrNotFound", err)
	}
}

func TestSweeper_ExpiryAndCompletion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	op := uuid.New()
	placeID := e.dir.addPlace(&op)
	userID := e.createAccount(t, 500)
	sweeper := booking.NewSweeper(e.repo, nil, observability.NewLogger())

	unpaid, err := e.svc.Reserve(ctx, placeID, userID, slot(10, 0), 60*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	paid, err := e.svc.Reserve(ctx, placeID, userID, slot(12, 0), 60*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.svc.ConfirmBatch(ctx, userID, []uuid.UUID{paid}, 100); err != nil {
		t.Fatal(err)
	}

	// sweep from a future instant past the hold TTL and past both slots
	future := time.Now().UTC().Add(24 * time.Hour)
	if err := sweeper.Sweep(ctx, future); err != nil {
		t.Fatal(err)
	}

	if _, err := e.repo.GetReservation(ctx, unpaid); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expired hold survived the sweep: %v", err)
	}

	res, err := e.repo.GetReservation(ctx, paid)
	if err != nil {
		t.Fatalf("confirmed reservation must never be expired: %v", err)
	}
	if res.Status != domain.StatusCompleted {
		t.Errorf("elapsed active reservation = %s, want completed", res.Status)
	}

	// second sweep is a no-op
	if err := sweeper.Sweep(ctx, future); err != nil {
		t.Fatal(err)
	}
	res, err = e.repo.GetReservation(ctx, paid)
	if err != nil || res.Status != domain.StatusCompleted {
		t.Errorf("second sweep changed state: %v %v", res, err)
	}
}

func TestList_OrderAndFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	op := uuid.New()
	placeID := e.dir.addPlace(&op)
	userID := e.createAccount(t, 500)

	early, err := e.svc.Reserve(ctx, placeID, userID, slot(9, 0), 60*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	late, err := e.svc.Reserve(ctx, placeID, userID, slot(15, 0), 60*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.svc.ConfirmBatch(ctx, userID, []uuid.UUID{early, late}, 200); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Cancel(ctx, late, userID); err != nil {
		t.Fatal(err)
	}

	active, err := e.svc.List(ctx, userID, booking.FilterActive)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != early {
		t.Errorf("active list = %+v, want only the early reservation", active)
	}
	if active[0].ClubName != "Test Club" {
		t.Errorf("summary not enriched: %+v", active[0])
	}

	history, err := e.svc.List(ctx, userID, booking.FilterHistory)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].ID != late {
		t.Errorf("history list = %+v, want only the cancelled reservation", history)
	}

	all, err := e.svc.List(ctx, userID, booking.FilterAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all list has %d entries, want 2", len(all))
	}
	// most recent start time first
	if all[0].ID != late || all[1].ID != early {
		t.Errorf("list order = [%s, %s], want [late, early]", all[0].ID, all[1].ID)
	}
}
