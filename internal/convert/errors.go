package convert

import (
	"errors"
	"fmt"
)

// ErrNoSceneLoaded is returned when navigation or export is attempted
// before any successful load.
var ErrNoSceneLoaded = errors.New("no scene loaded")

// RedundantConversionError reports an export whose target format equals the
// live scene's source format. This is a declared user error, not a no-op
// success; no encoder runs.
type RedundantConversionError struct {
	Format string
}

func (e *RedundantConversionError) Error() string {
	return fmt.Sprintf("scene is already in %s format", e.Format)
}
