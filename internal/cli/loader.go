package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quillback/spheretrace/internal/compiler"
	"github.com/quillback/spheretrace/internal/world"
)

// loadWorldFile loads a world document, dispatching on extension: .cue goes
// through the compiler, .json and .yaml/.yml through the document loader.
// A missing file is a command error; a malformed document is a validation
// failure, distinguished so the exit codes differ.
func loadWorldFile(formatter *OutputFormatter, path string) (*world.World, error) {
	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("world file not found: %s", path), nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("world file not found: %s", path))
	}

	var (
		w   *world.World
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		w, err = compiler.CompileWorldFile(path)
	} else {
		w, err = world.Load(path)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return nil, WrapExitError(ExitFailure, "invalid world document", err)
	}
	return w, nil
}

// countExits and countLocations summarize a world for validate output.
func countExits(w *world.World) int {
	n := 0
	for _, region := range w.Regions {
		n += len(region.Exits)
	}
	return n
}

func countLocations(w *world.World) int {
	return len(w.LocationNames())
}
