package indexqctl

import (
	"github.com/G-Research/indexq/internal/common/util"
	"github.com/G-Research/indexq/internal/indexq/queuestore"
)

// Status prints the number of pending and completed files and who holds the lock.
func (a *App) Status(showRecords bool) error {
	q, err := a.openQueue()
	if err != nil {
		return err
	}
	todo, err := q.GetAllAsList(queuestore.TodoDir)
	if err != nil {
		return err
	}
	done, err := q.GetAllAsList(queuestore.DoneDir)
	if err != nil {
		return err
	}
	locked, err := q.IsLocked()
	if err != nil {
		return err
	}

	table := util.NewTableBuilder()
	table.Row("Queue", q.Name())
	table.Row("Directory", q.Store().QueueDir())
	table.Row("Pending files", len(todo))
	table.Row("Completed files", len(done))
	if showRecords {
		records, err := q.GetAllJSON(queuestore.TodoDir)
		if err != nil {
			return err
		}
		table.Row("Pending records", len(records))
	}
	if locked {
		holder, _ := q.LockHolder()
		table.Row("Locked by", holder)
	} else {
		table.Row("Locked by", "-")
	}
	a.printf("%s", table.String())
	return nil
}

// Unlock removes the queue lock regardless of who holds it.
func (a *App) Unlock() error {
	q, err := a.openQueue()
	if err != nil {
		return err
	}
	if _, err := q.Unlock(); err != nil {
		return err
	}
	a.printf("Unlocked %s\n", q.Name())
	return nil
}
