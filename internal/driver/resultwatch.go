package driver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/hughhan1/rtest/internal/worker"
)

// ResultLine is one newly-observed result line from one worker's output
// file.
type ResultLine struct {
	WorkerIndex int
	Result      worker.Result
}

// ResultWatcher consumes N worker JSONL files concurrently as they grow,
// adapted from the tester package's fsnotify event loop: there it
// multiplexes source-file edits into one Events channel, here it
// multiplexes newly-appended result lines from N files into one channel
// so no worker's output can starve another's.
type ResultWatcher struct {
	fsWatcher *fsnotify.Watcher

	mu      sync.Mutex
	offsets map[string]int64
	index   map[string]int

	Lines  chan ResultLine
	Errors chan error
	done   chan struct{}
}

// NewResultWatcher starts watching paths, where paths[i] is the JSONL
// output file for worker i.
func NewResultWatcher(paths []string) (*ResultWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating result watcher: %w", err)
	}

	rw := &ResultWatcher{
		fsWatcher: fsWatcher,
		offsets:   make(map[string]int64),
		index:     make(map[string]int),
		Lines:     make(chan ResultLine, 256),
		Errors:    make(chan error, 16),
		done:      make(chan struct{}),
	}

	for i, p := range paths {
		// Ensure the file exists before we watch it: the worker may not
		// have created it yet.
		f, err := os.OpenFile(p, os.O_CREATE|os.O_RDONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("preparing result file %s: %w", p, err)
		}
		f.Close()

		if err := fsWatcher.Add(p); err != nil {
			return nil, fmt.Errorf("watching result file %s: %w", p, err)
		}
		rw.index[p] = i
		rw.offsets[p] = 0
	}

	go rw.run()

	return rw, nil
}

func (rw *ResultWatcher) run() {
	for {
		select {
		case <-rw.done:
			return

		case event, ok := <-rw.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			rw.drain(event.Name)

		case err, ok := <-rw.fsWatcher.Errors:
			if !ok {
				return
			}
			rw.Errors <- err
		}
	}
}

// drain reads every new line appended to path since the last read,
// parses it, and forwards it on Lines. Malformed trailing partial lines
// (a worker may still be mid-write) are left for the next event.
func (rw *ResultWatcher) drain(path string) {
	rw.mu.Lock()
	offset := rw.offsets[path]
	workerIdx, known := rw.index[path]
	rw.mu.Unlock()
	if !known {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		rw.Errors <- fmt.Errorf("reopen %s: %w", path, err)
		return
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		rw.Errors <- fmt.Errorf("seek %s: %w", path, err)
		return
	}

	r := bufio.NewReader(f)
	var consumed int64
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			consumed += int64(len(line))
			if len(bytes.TrimSpace(line)) > 0 {
				var res worker.Result
				if decodeErr := decodeLine(line, &res); decodeErr == nil {
					rw.Lines <- ResultLine{WorkerIndex: workerIdx, Result: res}
				} else {
					rw.Errors <- fmt.Errorf("decode %s: %w", path, decodeErr)
				}
			}
		}
		if err != nil {
			break
		}
	}

	rw.mu.Lock()
	rw.offsets[path] = offset + consumed
	rw.mu.Unlock()
}

func decodeLine(line []byte, res *worker.Result) error {
	return json.Unmarshal(bytes.TrimSpace(line), res)
}

// Close stops the watcher.
func (rw *ResultWatcher) Close() error {
	close(rw.done)
	return rw.fsWatcher.Close()
}
