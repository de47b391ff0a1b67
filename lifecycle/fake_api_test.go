package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mfg-ops/ordrefab/models"
)

// fakeAPI is an in-memory backend recording every call
type fakeAPI struct {
	mu       sync.Mutex
	orders   map[uint]models.ManufacturingOrder
	patches  []patchCall
	calls    map[string]int
	failFor  map[uint]error
	listErr  error
	startRes models.StartTodayResult
	gate     chan struct{} // when set, UpdateOrder waits on it

	active    int
	maxActive int
}

type patchCall struct {
	ID  uint
	Req models.UpdateOrderRequest
}

func newFakeAPI(orders ...models.ManufacturingOrder) *fakeAPI {
	f := &fakeAPI{
		orders:  make(map[uint]models.ManufacturingOrder),
		calls:   make(map[string]int),
		failFor: make(map[uint]error),
	}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) ListOrders(context.Context) ([]models.ManufacturingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.ManufacturingOrder, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAPI) UpdateOrder(ctx context.Context, id uint, req models.UpdateOrderRequest) (models.ManufacturingOrder, error) {
	f.mu.Lock()
	f.calls["update"]++
	f.patches = append(f.patches, patchCall{ID: id, Req: req})
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	if err := f.failFor[id]; err != nil {
		return models.ManufacturingOrder{}, err
	}
	o, ok := f.orders[id]
	if !ok {
		return models.ManufacturingOrder{}, errors.New("not found")
	}
	if req.Status != nil {
		o.Status = *req.Status
	}
	if req.Quantity != nil {
		o.Quantity = *req.Quantity
	}
	o.UpdatedAt = o.UpdatedAt.Add(time.Second)
	f.orders[id] = o
	return o, nil
}

func (f *fakeAPI) CancelOrder(_ context.Context, id uint) (models.ManufacturingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["cancel"]++
	if err := f.failFor[id]; err != nil {
		return models.ManufacturingOrder{}, err
	}
	o := f.orders[id]
	o.Status = models.StatusCancelled
	o.UpdatedAt = o.UpdatedAt.Add(time.Second)
	f.orders[id] = o
	return o, nil
}

func (f *fakeAPI) StartToday(_ context.Context, id uint) (models.StartTodayResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["start-today"]++
	if err := f.failFor[id]; err != nil {
		return nil, err
	}
	return f.startRes, nil
}

func (f *fakeAPI) StartOnDate(_ context.Context, id uint, date models.Date) (models.ManufacturingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["start-on-date"]++
	if err := f.failFor[id]; err != nil {
		return models.ManufacturingOrder{}, err
	}
	o := f.orders[id]
	duration := o.DurationDays()
	o.StartDate = date
	o.EndDate = date.AddDays(duration)
	o.Status = models.StatusInProgress
	o.UpdatedAt = o.UpdatedAt.Add(time.Second)
	f.orders[id] = o
	return o, nil
}

func (f *fakeAPI) DeleteOrder(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	if err := f.failFor[id]; err != nil {
		return err
	}
	delete(f.orders, id)
	return nil
}
