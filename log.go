package scenesync

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang/glog"
)

// Logging convention for the scenesync package:
// Warning:
//     contained faults that degrade consistency but must not crash the
//     context; remote apply/deserialize failures, broadcast send failures
// Info:
//     infrequent lifecycle events (channel open/close)
// V(1):
//     frequent per-command events; dedup skips, broadcasts, merges

// HandleError runs do and recovers any panic, reporting it as an error to
// the optional handlers. Used as the fault boundary around command apply
// and around the broadcast receive path.
func HandleError(do func(), handlers ...any) (r any) {
	defer func() {
		if r = recover(); r != nil {
			glog.Warningf("Unexpected error: %s\n", ErrorJson(r, debug.Stack()))
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%s", r)
			}
			for _, handler := range handlers {
				switch v := handler.(type) {
				case func():
					v()
				case func(error):
					v(err)
				}
			}
		}
	}()
	do()
	return
}

func ErrorJson(err any, stack []byte) string {
	stackLines := []string{}
	for _, line := range strings.Split(string(stack), "\n") {
		stackLines = append(stackLines, strings.TrimSpace(line))
	}
	errorJson, _ := json.Marshal(map[string]any{
		"error": fmt.Sprintf("%T=%s", err, err),
		"stack": stackLines,
	})
	return string(errorJson)
}

func Trace(tag string, do func()) {
	TraceWithReturn(tag, func() any {
		do()
		return nil
	})
}

func TraceWithReturn[R any](tag string, do func() R) (result R) {
	start := time.Now()
	glog.V(1).Infof("[%-8s]%s (%d)\n", "start", tag, start.UnixMilli())
	result = do()
	end := time.Now()
	millis := float32(end.Sub(start)) / float32(time.Millisecond)
	glog.V(1).Infof("[%-8s]%s (%.2fms) (%d)\n", "end", tag, millis, end.UnixMilli())
	return
}
