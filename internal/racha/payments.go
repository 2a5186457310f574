package racha

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/money"
	"github.com/hitoshi/racha/internal/repository"
)

// RecordPaymentInput は支払い記録の入力。
type RecordPaymentInput struct {
	EventID           string
	ParticipantID     string
	Amount            decimal.Decimal
	Provider          string
	ProviderPaymentID *string
}

// PaymentNotification は決済プロバイダからの状態通知。
// ProviderPaymentID が空の場合は PaymentID で支払いを特定する。
type PaymentNotification struct {
	ProviderPaymentID string
	PaymentID         string
	Status            model.PaymentStatus
}

// NotificationResult は通知反映の結果。
// Duplicate がtrueの場合は既に反映済みで、何も変更していない。
type NotificationResult struct {
	Payment   *model.Payment
	Duplicate bool
}

// RecordPayment はPENDING状態の支払いを記録する。
// rachaが締められる前は NOT_SETTLEMENT_FINAL を返す。判定はイベント行のロック下で行う。
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (*model.Payment, error) {
	if err := money.ValidatePositive(in.Amount); err != nil {
		return nil, model.NewInvalidAmountError(err.Error())
	}
	provider := strings.TrimSpace(in.Provider)
	if provider == "" {
		return nil, model.NewInvalidProviderError()
	}
	var providerPaymentID *string
	if in.ProviderPaymentID != nil {
		if trimmed := strings.TrimSpace(*in.ProviderPaymentID); trimmed != "" {
			providerPaymentID = &trimmed
		}
	}

	now := s.now()
	payment := &model.Payment{
		ID:                s.newID(),
		EventID:           in.EventID,
		ParticipantID:     in.ParticipantID,
		Amount:            in.Amount,
		Status:            model.PaymentStatusPending,
		Provider:          provider,
		ProviderPaymentID: providerPaymentID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.uow.WithinTx(ctx, nil, func(ctx context.Context, tx repository.Store) error {
		// 締め処理と直列化するため、イベント行をロックしてから締め済みかを判定する
		event, err := tx.Events().LockByID(ctx, in.EventID)
		if err != nil {
			return fmt.Errorf("イベントのロックに失敗しました: %w", err)
		}
		if event == nil {
			return model.NewEventNotFoundError(in.EventID)
		}
		final, err := s.gate.IsSettlementFinal(ctx, in.EventID)
		if err != nil {
			return err
		}
		if !final {
			return model.NewNotSettlementFinalError(in.EventID)
		}

		participant, err := tx.Participants().FindByID(ctx, in.ParticipantID)
		if err != nil {
			return fmt.Errorf("参加者の取得に失敗しました: %w", err)
		}
		if participant == nil || participant.EventID != in.EventID {
			return model.NewParticipantNotFoundError(in.ParticipantID)
		}
		if !participant.IsActive {
			return model.NewParticipantInactiveError(in.ParticipantID)
		}

		if err := tx.Payments().Create(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) && providerPaymentID != nil {
				return model.NewDuplicateProviderPaymentError(*providerPaymentID)
			}
			return fmt.Errorf("支払いの作成に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.RecordPaymentTransition(string(model.PaymentStatusPending))
	s.logger.Info("payment recorded",
		"event_id", payment.EventID,
		"payment_id", payment.ID,
		"participant_id", payment.ParticipantID,
		"provider", payment.Provider,
		"amount", payment.Amount.StringFixed(money.MinorUnitExponent),
	)
	return payment, nil
}

// ApplyPaymentNotification は決済通知を支払いに反映する。
//
// 許可される遷移は PENDING から PAID / FAILED / CANCELLED のみ。
// 同じ通知の再送や、同じ冪等キーで既にPAIDになった支払いへの通知は
// エラーにせず Duplicate=true を返す。
func (s *Service) ApplyPaymentNotification(ctx context.Context, n PaymentNotification) (*NotificationResult, error) {
	if !n.Status.IsTerminal() {
		return nil, model.NewInvalidStatusTransitionError(model.PaymentStatusPending, n.Status)
	}
	ref := n.ProviderPaymentID
	if ref == "" {
		ref = n.PaymentID
		// 支払いIDはUUIDで発行しているため、それ以外の値に一致する支払いはない
		if !isUUID(ref) {
			return nil, model.NewPaymentNotFoundError(ref)
		}
	}

	var result *NotificationResult
	err := s.uow.WithinTx(ctx, nil, func(ctx context.Context, tx repository.Store) error {
		var (
			found *model.Payment
			err   error
		)
		if n.ProviderPaymentID != "" {
			found, err = tx.Payments().FindByProviderPaymentID(ctx, n.ProviderPaymentID)
		} else {
			found, err = tx.Payments().FindByID(ctx, n.PaymentID)
		}
		if err != nil {
			return fmt.Errorf("支払いの取得に失敗しました: %w", err)
		}
		if found == nil {
			return model.NewPaymentNotFoundError(ref)
		}

		// 同一支払いへの同時通知は行ロックで直列化する
		payment, err := tx.Payments().LockByID(ctx, found.ID)
		if err != nil {
			return fmt.Errorf("支払いのロックに失敗しました: %w", err)
		}
		if payment == nil {
			return model.NewPaymentNotFoundError(ref)
		}

		if payment.Status == n.Status {
			result = &NotificationResult{Payment: payment, Duplicate: true}
			return nil
		}
		if !payment.Status.CanTransitionTo(n.Status) {
			return model.NewInvalidStatusTransitionError(payment.Status, n.Status)
		}

		now := s.now()
		if n.Status == model.PaymentStatusPaid {
			applied, err := tx.Payments().MarkPaid(ctx, payment.ID, payment.IdempotencyKey(), now)
			if err != nil {
				return fmt.Errorf("支払いの確定に失敗しました: %w", err)
			}
			if !applied {
				result = &NotificationResult{Payment: payment, Duplicate: true}
				return nil
			}
		} else {
			if err := tx.Payments().UpdateStatus(ctx, payment.ID, n.Status, now); err != nil {
				return fmt.Errorf("支払い状態の更新に失敗しました: %w", err)
			}
		}

		payment.Status = n.Status
		payment.UpdatedAt = now
		result = &NotificationResult{Payment: payment}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		s.recorder.RecordDuplicateNotification()
		s.logger.Info("duplicate payment notification ignored",
			"payment_id", result.Payment.ID,
			"reference", ref,
			"status", string(n.Status),
		)
		return result, nil
	}

	s.recorder.RecordPaymentTransition(string(n.Status))
	s.logger.Info("payment status changed",
		"event_id", result.Payment.EventID,
		"payment_id", result.Payment.ID,
		"status", string(n.Status),
	)
	return result, nil
}

// SummarizePayments はPAIDの支払い額を参加者ごとに合計して返す。
// PAIDの支払いがない参加者はマップに含まれない。
func (s *Service) SummarizePayments(ctx context.Context, eventID string) (map[string]decimal.Decimal, error) {
	totals, err := s.uow.Payments().SumPaidByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("支払い合計の取得に失敗しました: %w", err)
	}
	if totals == nil {
		totals = make(map[string]decimal.Decimal)
	}
	return totals, nil
}

func isUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
