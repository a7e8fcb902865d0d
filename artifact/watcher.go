package artifact

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports changes to loaded artifact files. The running bundle is
// never swapped; a change only means the process must be restarted to pick
// the new artifact up.
type Watcher struct {
	fs       *fsnotify.Watcher
	files    map[string]string // file name -> artifact name
	log      *zap.Logger
	onChange func(artifact string, op fsnotify.Op)

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher watches the artifact directory of cfg. onChange may be nil.
func NewWatcher(cfg Config, log *zap.Logger, onChange func(artifact string, op fsnotify.Op)) (*Watcher, error) {
	cfg = cfg.WithDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(cfg.Dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", cfg.Dir, err)
	}

	files := make(map[string]string, 3)
	for _, n := range cfg.Sources() {
		files[n.File] = n.Name
	}
	w := &Watcher{
		fs:       fw,
		files:    files,
		log:      log,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			name, tracked := w.files[filepath.Base(ev.Name)]
			if !tracked || ev.Op&relevant == 0 {
				continue
			}
			w.log.Warn("artifact changed on disk; restart to load it",
				zap.String("artifact", name),
				zap.String("path", ev.Name),
				zap.String("op", ev.Op.String()))
			if w.onChange != nil {
				w.onChange(name, ev.Op)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Error("artifact watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) Close() error {
	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
