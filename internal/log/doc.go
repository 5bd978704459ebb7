// Package log provides the structured logger used by condexpr and its
// commands. It is a thin layer over [log/slog].
//
// Loggers are configured at creation time using functional options:
//
//	logger := log.Make(os.Stderr,
//		log.WithLevel(log.LevelDebug),
//		log.WithFormat(log.FormatText))
//	logger.Debug("parsed", slog.String("src", src))
//
// The zero Logger discards everything, so types embedding a Logger need no
// initialization before use.
//
// # Levels
//
// In addition to the slog levels, the package defines [LevelTrace] below
// [LevelDebug]. Parse traces are logged at this level.
//
// # Files
//
// [WithFile] copies log output into a size-rotated file.
package log
