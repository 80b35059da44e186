// Package sim is a simulated execution venue for one instrument. Market and
// close orders queue until the next bar or tick and fill at its first price;
// stop orders rest until prices trade through them.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/gridtrader/broker"
	"github.com/rustyeddy/gridtrader/journal"
	"github.com/rustyeddy/gridtrader/ledger"
	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/pkg/id"
)

type Config struct {
	Instrument market.Instrument
	Currency   string
	Balance    float64

	// PointValue is money per unit price move per unit volume. Zero means 1.
	PointValue float64

	// MaxFillVolume caps how much of one order fills per bar. Zero fills
	// everything at once.
	MaxFillVolume float64

	// MarginRate is the fraction of notional held as margin. Zero disables
	// margin checks and liquidation.
	MarginRate float64
}

func (c Config) pointValue() float64 {
	if c.PointValue > 0 {
		return c.PointValue
	}
	return 1
}

// Listener receives venue events. It is called after the venue's lock is
// released, so it may place or cancel orders.
type Listener interface {
	OnFill(broker.Fill)
	OnReject(broker.Rejection)
}

type order struct {
	id        string
	kind      broker.OrderKind
	side      market.Side
	volume    float64 // requested; 0 for close orders means whole position
	price     float64 // stop trigger
	filled    float64
	layer     int
	seq       int
	createdAt time.Time

	// forced is the trade reason of a close raised by the venue itself.
	// Forced closes ignore MaxFillVolume.
	forced string
}

func (o *order) remaining() float64 { return o.volume - o.filled }

// position is one side's exposure plus the bookkeeping for the current
// cycle's trade record.
type position struct {
	legs *ledger.Ledger

	tradeID      string
	openTime     time.Time
	layers       int
	entryVolume  float64
	entryNotion  float64
	exitVolume   float64
	exitNotional float64
	realized     float64
}

type Venue struct {
	mu sync.Mutex

	cfg      Config
	acct     broker.Account
	last     market.Quote
	mark     markFunc // closing price per side at the last event
	orders   map[string]*order
	seq      int
	pos      map[market.Side]*position
	journal  journal.Journal
	listener Listener
}

var _ broker.Venue = (*Venue)(nil)
var _ broker.AccountSource = (*Venue)(nil)

func New(cfg Config, j journal.Journal) *Venue {
	if j == nil {
		j = journal.Discard
	}
	v := &Venue{
		cfg: cfg,
		acct: broker.Account{
			ID:         "sim",
			Currency:   cfg.Currency,
			Balance:    cfg.Balance,
			Equity:     cfg.Balance,
			FreeMargin: cfg.Balance,
		},
		orders:  make(map[string]*order),
		pos:     make(map[market.Side]*position, 2),
		journal: j,
	}
	for _, s := range market.Sides {
		v.pos[s] = &position{legs: ledger.New(s)}
	}
	return v
}

// SetListener sets the callback for fills and rejections.
func (v *Venue) SetListener(l Listener) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listener = l
}

func (v *Venue) Account(ctx context.Context) (broker.Account, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.acct, nil
}

func (v *Venue) reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", broker.ErrOrderRejected, fmt.Sprintf(format, args...))
}

func (v *Venue) checkVolume(volume float64) error {
	in := v.cfg.Instrument
	switch {
	case !(volume > 0):
		return v.reject("volume %v must be positive", volume)
	case in.MinVolume > 0 && volume < in.MinVolume:
		return v.reject("volume %v below minimum %v", volume, in.MinVolume)
	case in.MaxVolume > 0 && volume > in.MaxVolume:
		return v.reject("volume %v above maximum %v", volume, in.MaxVolume)
	}
	return nil
}

func (v *Venue) addOrder(o *order) string {
	v.seq++
	o.seq = v.seq
	o.id = id.NewAt(v.now())
	o.createdAt = v.now()
	v.orders[o.id] = o
	return o.id
}

func (v *Venue) now() time.Time {
	if v.last.Time.IsZero() {
		return time.Now()
	}
	return v.last.Time
}

func (v *Venue) PlaceMarketOrder(ctx context.Context, side market.Side, volume float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !side.Valid() {
		return "", v.reject("invalid side %v", side)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkVolume(volume); err != nil {
		return "", err
	}
	return v.addOrder(&order{kind: broker.KindEntry, side: side, volume: volume}), nil
}

func (v *Venue) PlaceStopOrder(ctx context.Context, side market.Side, volume, price float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !side.Valid() {
		return "", v.reject("invalid side %v", side)
	}
	if !(price > 0) {
		return "", v.reject("stop price %v must be positive", price)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !(volume > 0) {
		return "", v.reject("volume %v must be positive", volume)
	}
	return v.addOrder(&order{kind: broker.KindStop, side: side, volume: volume, price: price}), nil
}

func (v *Venue) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.orders[orderID]; !ok {
		return fmt.Errorf("cancel %s: %w", orderID, broker.ErrUnknownOrder)
	}
	delete(v.orders, orderID)
	return nil
}

func (v *Venue) ClosePosition(ctx context.Context, side market.Side) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.pos[side]
	if !ok || p.legs.Empty() {
		return "", v.reject("no %s position to close", side)
	}
	return v.addOrder(&order{kind: broker.KindClose, side: side}), nil
}

// Snapshot reports open positions and working orders the way a live venue
// would after a restart.
func (v *Venue) Snapshot() broker.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap := broker.Snapshot{Instrument: v.cfg.Instrument.Name, Time: v.last.Time}
	for _, s := range market.Sides {
		p := v.pos[s]
		if p.legs.Empty() {
			continue
		}
		avg, _ := p.legs.AveragePrice()
		snap.Positions = append(snap.Positions, broker.Position{
			Side:         s,
			Volume:       p.legs.AggregateVolume(),
			AveragePrice: avg,
			Legs:         p.legs.Legs(),
		})
	}
	for _, o := range v.sortedOrders() {
		snap.Orders = append(snap.Orders, broker.Order{
			ID:     o.id,
			Kind:   o.kind,
			Side:   o.side,
			Volume: o.remaining(),
			Price:  o.price,
		})
	}
	return snap
}

// Last is the most recent bar's quote, or the mid of the most recent tick.
func (v *Venue) Last() market.Quote {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}
