package racha

import (
	"context"
	"fmt"

	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/repository"
)

// SettlementGate はイベントのrachaが締められ、支払いを受け付けられるかを判定する。
// 締め処理そのものは event パッケージが担う。
type SettlementGate interface {
	IsSettlementFinal(ctx context.Context, eventID string) (bool, error)
}

// EventSettlementGate はeventsテーブルの締め日時で判定するSettlementGate。
type EventSettlementGate struct {
	events repository.EventRepository
}

// NewEventSettlementGate はEventSettlementGateを生成する。
func NewEventSettlementGate(events repository.EventRepository) *EventSettlementGate {
	return &EventSettlementGate{events: events}
}

// IsSettlementFinal はrachaが締められていればtrueを返す。
// イベントが存在しない場合は EVENT_NOT_FOUND を返す。
func (g *EventSettlementGate) IsSettlementFinal(ctx context.Context, eventID string) (bool, error) {
	event, err := g.events.FindByID(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return false, model.NewEventNotFoundError(eventID)
	}
	return event.IsSettlementFinal(), nil
}

var _ SettlementGate = (*EventSettlementGate)(nil)
