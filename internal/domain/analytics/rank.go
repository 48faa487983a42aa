package analytics

import (
	"sort"

	"github.com/okian/booklend/internal/domain/model"
)

// RankOverdue orders rows by overdue count desc then member id asc and
// assigns dense ranks: equal counts share a rank and the next distinct count
// gets the next integer.
func RankOverdue(rows []model.OverdueMember) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].OverdueCount != rows[j].OverdueCount {
			return rows[i].OverdueCount > rows[j].OverdueCount
		}
		return rows[i].MemberID < rows[j].MemberID
	})

	var rank int64
	for i := range rows {
		if i == 0 || rows[i].OverdueCount != rows[i-1].OverdueCount {
			rank++
		}
		rows[i].Rank = rank
	}
}
