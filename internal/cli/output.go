package cli

import (
	"fmt"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/alert"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/ledger"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
)

func printBatchResult(r model.BatchResult) {
	fmt.Println(r.Summary())
	for _, item := range r.Successful {
		fmt.Printf("  applied  %-50s change=%d\n", item.Action.Describe(), item.ChangeID)
	}
	for _, item := range r.Manual {
		fmt.Printf("  manual   %s\n", item.Action.Describe())
	}
	for _, item := range r.Blocked {
		fmt.Printf("  blocked  %s\n", item.Action.Describe())
		for _, reason := range item.Reasons {
			fmt.Printf("           - %s\n", reason)
		}
	}
	for _, item := range r.Failed {
		fmt.Printf("  FAILED   %s: %s\n", item.Action.Describe(), item.Err)
	}
}

func printSweepReport(r alert.Report) {
	fmt.Printf("sweep %s for %s: %d examined, %d rolled back, %d confirmed good, %d deferred\n",
		r.SweepID, r.CustomerID, r.Examined, r.RolledBack, r.ConfirmedGood, r.Deferred)
	for _, ev := range r.Rollbacks {
		fmt.Printf("  %s\n", ev.Summary())
	}
	for _, note := range r.Notes {
		fmt.Printf("  note: %s\n", note)
	}
}

func printEntry(e ledger.Entry) {
	fmt.Printf("#%d %s %s %s %s: %.2f -> %.2f (%.1f%%) by %s rule=%s status=%s\n",
		e.ChangeID, e.ExecutedAt.Format("2006-01-02 15:04"), e.CustomerID,
		e.EntityType, e.EntityID, e.OldValue, e.NewValue, e.ChangePct,
		e.ApprovedBy, e.RuleID, e.RollbackStatus)
	if e.RollbackStatus == ledger.StatusRolledBack && e.RollbackOfID != nil {
		fmt.Printf("    rolled back by change %d: %s\n", *e.RollbackOfID, e.RollbackReason)
	}
}
