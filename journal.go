package scenesync

import (
	"encoding/json"

	"github.com/golang/glog"
	bolt "go.etcd.io/bbolt"
)

var journalCommandsBucket = []byte("commands")

// CommandJournal is a persistence side-effect consumer: it subscribes to
// executed events and stores the wire form of every command that carries
// the persistence tag. Keys are the raw 16-byte command ids; ulid ids are
// time-ordered, so iteration yields commands roughly in creation order.
//
// The journal is advisory like every side-effect consumer. A write
// failure is logged and never affects command execution.
type CommandJournal struct {
	db *bolt.DB
}

func NewCommandJournal(path string) (*CommandJournal, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(journalCommandsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &CommandJournal{
		db: db,
	}, nil
}

// Attach subscribes the journal to an executor.
// The returned function unsubscribes.
func (self *CommandJournal) Attach(executor *Executor) func() {
	return executor.AddExecuteCallback(func(event *ExecuteEvent) {
		persist := false
		for _, sideEffect := range event.SideEffects {
			if sideEffect.Kind == SideEffectPersistence {
				persist = true
				break
			}
		}
		if !persist {
			return
		}
		if err := self.Record(event.Command); err != nil {
			glog.Warningf("journal command %s: %s\n", event.Command.Id(), err)
		}
	})
}

func (self *CommandJournal) Record(command Command) error {
	wireCommand, err := SerializeCommand(command)
	if err != nil {
		return err
	}
	value, err := json.Marshal(wireCommand)
	if err != nil {
		return err
	}
	return self.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(journalCommandsBucket).Put(command.Id().Bytes(), value)
	})
}

func (self *CommandJournal) Remove(commandId Id) error {
	return self.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(journalCommandsBucket).Delete(commandId.Bytes())
	})
}

// Replay visits every stored command in id order.
func (self *CommandJournal) Replay(visit func(wireCommand *WireCommand) error) error {
	return self.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(journalCommandsBucket).ForEach(func(k []byte, v []byte) error {
			var wireCommand WireCommand
			if err := json.Unmarshal(v, &wireCommand); err != nil {
				return err
			}
			return visit(&wireCommand)
		})
	})
}

func (self *CommandJournal) Size() (int, error) {
	count := 0
	err := self.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(journalCommandsBucket).Stats().KeyN
		return nil
	})
	return count, err
}

func (self *CommandJournal) Close() error {
	return self.db.Close()
}
