// Package staging turns compressed dump archives into plain files the
// parser can stream.
package staging

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/logger"
)

// maxStderr bounds how much of a failing command's stderr is kept.
const maxStderr = 4096

// Stager decompresses archives by running an external command per suffix.
// The command gets the archive path appended as its last argument and must
// write the decompressed stream to stdout.
type Stager struct {
	commands map[string][]string
	tempDir  string
	logger   *zap.SugaredLogger
}

// New parses each command line with shell quoting rules. Keys are archive
// suffixes with or without the leading dot.
func New(commands map[string]string, tempDir string, log *zap.SugaredLogger) (*Stager, error) {
	s := &Stager{
		commands: make(map[string][]string, len(commands)),
		tempDir:  tempDir,
		logger:   logger.Named(log, "staging"),
	}
	for ext, line := range commands {
		argv, err := shellquote.Split(line)
		if err != nil {
			return nil, errors.NewConfigError("staging command for %q: %v", ext, err)
		}
		if len(argv) == 0 {
			return nil, errors.NewConfigError("staging command for %q is empty", ext)
		}
		s.commands[strings.TrimPrefix(strings.ToLower(ext), ".")] = argv
	}
	return s, nil
}

// Suffixes lists the archive suffixes this stager handles, sorted.
func (s *Stager) Suffixes() []string {
	out := make([]string, 0, len(s.commands))
	for ext := range s.commands {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// NeedsStaging reports whether path has a configured archive suffix.
func (s *Stager) NeedsStaging(path string) bool {
	_, ok := s.command(path)
	return ok
}

func (s *Stager) command(path string) ([]string, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	argv, ok := s.commands[ext]
	return argv, ok
}

// Stage returns a plain file to parse in place of path. Paths without a
// configured suffix are returned unchanged. cleanup removes any temporary
// file and is always safe to call.
func (s *Stager) Stage(ctx context.Context, path string) (string, func(), error) {
	noop := func() {}
	argv, ok := s.command(path)
	if !ok {
		return path, noop, nil
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out, err := os.CreateTemp(s.tempDir, base+"-*.xml")
	if err != nil {
		return "", noop, errors.Wrap(err, "create staging file")
	}
	staged := out.Name()
	cleanup := func() {
		if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
			s.logger.Warnw("Failed to remove staging file", logger.FieldPath, staged, logger.FieldError, err)
		}
	}

	args := append(append([]string{}, argv[1:]...), path)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Stdout = out
	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr

	s.logger.Infow("Staging archive",
		logger.FieldFile, path,
		logger.FieldCommand, shellquote.Join(append([]string{argv[0]}, args...)...),
		logger.FieldPath, staged)

	runErr := cmd.Run()
	closeErr := out.Close()
	if runErr != nil {
		cleanup()
		return "", noop, errors.WithDetail(
			errors.Wrapf(runErr, "decompress %s with %s", path, argv[0]),
			strings.TrimSpace(stderr.String()))
	}
	if closeErr != nil {
		cleanup()
		return "", noop, errors.Wrap(closeErr, "close staging file")
	}
	return staged, cleanup, nil
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
