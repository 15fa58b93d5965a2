package classifier

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	pkgerrors "github.com/pkg/errors"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// frame is a resolved stack frame.
type frame struct {
	Function string
	File     string
	Line     int
}

func (f frame) String() string {
	return fmt.Sprintf("%s (%s:%d)", f.Function, filepath.Base(f.File), f.Line)
}

// framesOf returns the frames of the deepest stack trace recorded in err's
// chain, which is the one closest to where the failure started.
func framesOf(err error) []frame {
	var deepest pkgerrors.StackTrace
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if st, ok := cur.(stackTracer); ok && len(st.StackTrace()) > 0 {
			deepest = st.StackTrace()
		}
	}

	frames := make([]frame, 0, len(deepest))
	for _, f := range deepest {
		pc := uintptr(f) - 1
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line := fn.FileLine(pc)
		frames = append(frames, frame{Function: fn.Name(), File: file, Line: line})
	}
	return frames
}
