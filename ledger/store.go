package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/paygate/models"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrTokenNotFound   = errors.New("token not found")
	ErrTokenMaxUses    = errors.New("token max uses exceeded")
	// ErrInvalidTransition means the order was not in the expected state when
	// a guarded transition ran; the caller reloads and inspects the order.
	ErrInvalidTransition = errors.New("invalid order transition")
)

// Store is the single source of truth for orders, payments, tokens, and the
// download audit log. Every component reads and writes through it; nothing
// holds independent in-memory state, so multiple gateway instances sharing
// one database stay consistent.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateOrder(order *models.Order) error {
	if order.Status == "" {
		order.Status = models.StatusPendingPayment
	}
	if err := s.db.Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.Where("order_id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetProduct(productID string) (*models.Product, error) {
	var product models.Product
	err := s.db.Where("product_id = ?", productID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// TransitionOrder moves an order from one status to another with a
// compare-and-set keyed on the current status, so two racing callers cannot
// both win the same transition. extra fields are applied with the status.
// Returns ErrInvalidTransition when the order is no longer in `from`.
func (s *Store) TransitionOrder(orderID string, from, to models.OrderStatus, extra map[string]interface{}) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	fields := map[string]interface{}{"status": to}
	for k, v := range extra {
		fields[k] = v
	}

	res := s.db.Model(&models.Order{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to transition order %s: %w", orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetOrder(orderID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// MarkPaid performs the guarded PENDING_PAYMENT -> PAID transition.
func (s *Store) MarkPaid(orderID, txHash string, paidAt time.Time) error {
	return s.TransitionOrder(orderID, models.StatusPendingPayment, models.StatusPaid, map[string]interface{}{
		"tx_hash": txHash,
		"paid_at": paidAt,
	})
}

// MarkDelivered records that a download token was successfully issued.
func (s *Store) MarkDelivered(orderID, tokenID string) error {
	return s.TransitionOrder(orderID, models.StatusPaid, models.StatusDelivered, map[string]interface{}{
		"token_id": tokenID,
	})
}

// ExpireStaleOrders marks orders stuck in PENDING_PAYMENT since before the
// cutoff as EXPIRED. Safe to race with payment verification: the status
// predicate makes it a no-op for orders that just went PAID.
func (s *Store) ExpireStaleOrders(cutoff time.Time) (int64, error) {
	res := s.db.Model(&models.Order{}).
		Where("status = ? AND created_at < ?", models.StatusPendingPayment, cutoff).
		Update("status", models.StatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire stale orders: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UpsertPayment inserts a payment record keyed by tx_hash. If the hash is
// already present the existing record is returned unchanged and created is
// false; the unique index closes the read-check-then-write race.
func (s *Store) UpsertPayment(record *models.PaymentRecord) (*models.PaymentRecord, bool, error) {
	err := s.db.Create(record).Error
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, fmt.Errorf("failed to record payment: %w", err)
	}
	existing, err := s.GetPaymentByTxHash(record.TxHash)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) GetPaymentByTxHash(txHash string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := s.db.Where("tx_hash = ?", txHash).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gorm.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) CreateToken(token *models.DownloadToken) error {
	if err := s.db.Create(token).Error; err != nil {
		return fmt.Errorf("failed to create download token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(tokenID string) (*models.DownloadToken, error) {
	var token models.DownloadToken
	err := s.db.Where("token_id = ?", tokenID).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// ConsumeTokenUse increments use_count only while it is below max_uses, in a
// single conditional update. Two concurrent redemptions with one use left
// cannot both pass: exactly one update matches.
func (s *Store) ConsumeTokenUse(tokenID string) error {
	res := s.db.Model(&models.DownloadToken{}).
		Where("token_id = ? AND use_count < max_uses", tokenID).
		Update("use_count", gorm.Expr("use_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("failed to consume token use: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetToken(tokenID); err != nil {
			return err
		}
		return ErrTokenMaxUses
	}
	return nil
}

// AppendDownload writes one row of the append-only audit log.
func (s *Store) AppendDownload(event *models.DownloadEvent) error {
	if err := s.db.Create(event).Error; err != nil {
		return fmt.Errorf("failed to append download event: %w", err)
	}
	return nil
}
