package model

import (
	"sort"
	"time"
)

// Participant はイベントのrachaで費用を分担する1人を表す。
// UserIDは認証済みアカウントとの任意の紐付け（招待受諾前はnil）。
type Participant struct {
	ID        string
	EventID   string
	Name      string
	UserID    *string
	IsActive  bool
	CreatedAt time.Time
}

// SortByCreation は参加者を作成順（created_at、同時刻ならid）に並べ替える。
// 端数の配分順はこの順序に従う。
func SortByCreation(ps []*Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}
