package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/sanity-io/litter"

	"github.com/hlorellium/scenesync"
)

// Drives several in-process execution contexts against one memory
// channel, applies a random edit script in one context with undo/redo
// issued from the others, then checks that every context converged to
// the same document.

type simContext struct {
	state    *scenesync.DocState
	history  *scenesync.HistoryManager
	executor *scenesync.Executor
	sync     *scenesync.SyncManager
}

func newSimContext(channelName string) *simContext {
	state := scenesync.NewDocState()
	history := scenesync.NewHistoryManagerWithDefaults()
	executor := scenesync.NewExecutorWithDefaults(history)
	channel := scenesync.NewMemoryChannel(channelName)
	return &simContext{
		state:    state,
		history:  history,
		executor: executor,
		sync:     scenesync.NewSyncManager(executor, state, channel),
	}
}

func main() {
	usage := `Scenesync convergence sim.

Usage:
    scenesync-sim [--contexts=<n>] [--edits=<n>] [--seed=<seed>] [--dump]

Options:
    -h --help          Show this screen.
    --contexts=<n>     Number of execution contexts [default: 3].
    --edits=<n>        Number of edits to apply [default: 50].
    --seed=<seed>      Random seed [default: 1].
    --dump             Dump the final scene.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], "0.1.0")
	if err != nil {
		panic(err)
	}
	// glog configures itself through the flag package
	flag.CommandLine.Parse([]string{})
	flag.Set("logtostderr", "true")

	contextCount, _ := opts.Int("--contexts")
	editCount, _ := opts.Int("--edits")
	seed, _ := opts.Int("--seed")
	dump, _ := opts.Bool("--dump")

	random := rand.New(rand.NewSource(int64(seed)))

	contexts := []*simContext{}
	for i := 0; i < contextCount; i += 1 {
		contexts = append(contexts, newSimContext("sim"))
	}

	shapeIds := []scenesync.Id{}
	for i := 0; i < editCount; i += 1 {
		// edits all originate in context 0; undo/redo comes from anywhere
		origin := contexts[0]
		switch random.Intn(5) {
		case 0, 1:
			shape := &scenesync.Shape{
				Id:   scenesync.NewId(),
				Kind: "rect",
				Vertices: []scenesync.Point{
					{X: float64(random.Intn(100)), Y: float64(random.Intn(100))},
					{X: float64(random.Intn(100)), Y: float64(random.Intn(100))},
				},
			}
			must(origin.executor.Execute(scenesync.NewCreateShapeCommand(shape), origin.state, scenesync.SourceLocal))
			shapeIds = append(shapeIds, shape.Id)
		case 2:
			if 0 < len(shapeIds) {
				shapeId := shapeIds[random.Intn(len(shapeIds))]
				command := scenesync.NewMoveShapesCommand([]scenesync.Id{shapeId}, float64(random.Intn(10)), float64(random.Intn(10)))
				if err := origin.executor.Execute(command, origin.state, scenesync.SourceLocal); err != nil {
					glog.Infof("move rejected: %s\n", err)
				}
			}
		case 3:
			// let edits settle before undoing from a random context
			waitForDelivery()
			undoContext := contexts[random.Intn(len(contexts))]
			undoContext.executor.Undo(undoContext.state)
		case 4:
			waitForDelivery()
			redoContext := contexts[random.Intn(len(contexts))]
			redoContext.executor.Redo(redoContext.state)
		}
	}
	waitForDelivery()

	converged := true
	reference := sceneJson(contexts[0].state)
	for i, c := range contexts {
		pastCount, futureCount := c.history.HistorySize()
		glog.Infof("context %d: past=%d future=%d\n", i, pastCount, futureCount)
		if sceneJson(c.state) != reference {
			converged = false
			glog.Errorf("context %d diverged\n", i)
		}
	}

	if dump {
		fmt.Println(litter.Sdump(contexts[0].state.Scene))
	}
	for _, c := range contexts {
		c.sync.Destroy()
		c.executor.Close()
	}
	if !converged {
		os.Exit(1)
	}
	fmt.Printf("%d contexts converged after %d edits\n", contextCount, editCount)
}

func sceneJson(state *scenesync.DocState) string {
	b, _ := json.Marshal(state.Scene)
	return string(b)
}

func waitForDelivery() {
	// memory channel delivery is asynchronous but fast
	time.Sleep(20 * time.Millisecond)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
