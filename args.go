package validatecache

import (
	"strings"

	"github.com/jacoelho/validatecache/errors"
)

// SaveFlag requests that the grammar cache be written after validation.
const SaveFlag = "-save"

// Usage is the one-line synopsis printed on argument errors.
const Usage = "Usage: validatecache [-save] [schema.cache] file.xml"

// ResolveArgs maps command-line arguments to a Config:
//
//	cache doc        -> validate doc with cache, save afterwards
//	-save cache doc  -> same, save explicit
//	-save doc        -> validate doc without a cache
//
// Any other shape is an errors.CodeUsage error.
func ResolveArgs(args []string) (Config, error) {
	save := false
	positional := args
	if len(args) > 0 && args[0] == SaveFlag {
		save = true
		positional = args[1:]
	}
	for _, a := range positional {
		if a == SaveFlag {
			return Config{}, errors.New(errors.CodeUsage, "resolve arguments", "", "-save must be the first argument")
		}
		if strings.TrimSpace(a) == "" {
			return Config{}, errors.New(errors.CodeUsage, "resolve arguments", "", "empty path argument")
		}
	}

	switch {
	case len(positional) == 2:
		return Config{CachePath: positional[0], DocumentPath: positional[1], Save: true}, nil
	case len(positional) == 1 && save:
		return Config{DocumentPath: positional[0]}, nil
	default:
		return Config{}, errors.Newf(errors.CodeUsage, "resolve arguments", "", "unexpected argument count %d", len(args))
	}
}
