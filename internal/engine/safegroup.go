package engine

import (
	"fmt"
	"runtime/debug"

	"github.com/zakazane/modrules/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// SafeGroup wraps errgroup.Group with panic recovery. A failing function
// does not cancel the others.
type SafeGroup struct {
	group  errgroup.Group
	logger logger.Logger
}

// NewSafeGroup creates a new SafeGroup running at most limit functions at
// once; limit <= 0 means no limit
func NewSafeGroup(log logger.Logger, limit int) *SafeGroup {
	sg := &SafeGroup{logger: log}
	if limit > 0 {
		sg.group.SetLimit(limit)
	}
	return sg
}

// Go runs fn in a new goroutine. A panic is logged with its stack and
// returned from Wait as an error.
func (sg *SafeGroup) Go(fn func() error) {
	sg.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				sg.logger.Error("Goroutine panic recovered",
					logger.WithField("panic", r),
					logger.WithField("stack_trace", string(debug.Stack())))
				err = fmt.Errorf("goroutine panic: %v", r)
			}
		}()
		return fn()
	})
}

// Wait blocks until every function has returned and reports the first error
func (sg *SafeGroup) Wait() error {
	return sg.group.Wait()
}
