// Package loadstate turns asynchronous fetches into polled tag transitions.
// An entity carrying FetchRequest and Loading is picked up by the fetch
// system; once its bytes arrive, a later tick stores them in the request and
// swaps Loading for Loaded. Nothing calls back into the world from the
// fetching goroutines.
package loadstate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/toxoid/toxoid-go/internal/core/ecs"
	"github.com/toxoid/toxoid-go/internal/core/host"
)

// DataType tells consumers how to decode FetchRequest.Data.
type DataType uint8

const (
	DataRaw DataType = iota
	DataImage
	DataAtlas
	DataSkeleton
	DataTilemap
)

// FetchRequest asks for the file at Path. Data is filled in when loaded.
type FetchRequest struct {
	DataType DataType
	Path     string
	Data     []byte
	UserData uint64
}

// Tags of the state machine.
type (
	Loading    struct{}
	Loaded     struct{}
	LoadFailed struct{}
)

// Fetcher retrieves the bytes behind a request path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// FileFetcher reads request paths relative to Root.
type FileFetcher struct {
	Root string
}

func (f FileFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("fetch %s: path escapes root", path)
	}
	data, err := os.ReadFile(filepath.Join(f.Root, clean))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	return data, nil
}

type job struct {
	done chan struct{}
	data []byte
	err  error
}

// Loader runs fetches on a bounded errgroup and hands results back to the
// tick goroutine through the fetch system.
type Loader struct {
	log     *zap.Logger
	fetcher Fetcher
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	jobs    map[ecs.EntityID]*job
}

// NewLoader creates a loader running at most limit fetches at once.
func NewLoader(fetcher Fetcher, limit int, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &errgroup.Group{}
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &Loader{
		log:     log,
		fetcher: fetcher,
		ctx:     ctx,
		cancel:  cancel,
		group:   g,
		jobs:    make(map[ecs.EntityID]*job),
	}
}

// Init registers the request components and the fetch system on w.
func (l *Loader) Init(w *ecs.World) error {
	for _, fn := range []func(*ecs.World) (ecs.ComponentID, error){
		ecs.Register[FetchRequest],
		ecs.Register[Loading],
		ecs.Register[Loaded],
		ecs.Register[LoadFailed],
	} {
		if _, err := fn(w); err != nil {
			return fmt.Errorf("loadstate: %w", err)
		}
	}
	_, err := w.System("fetch").
		With(ecs.TermOf[FetchRequest](), ecs.TermOf[Loading]()).
		Phase(host.PhasePreUpdate).
		Build(l.poll)
	if err != nil {
		return fmt.Errorf("loadstate: %w", err)
	}
	return nil
}

// Request spawns an entity that will load path.
func Request(w *ecs.World, dt DataType, path string, userData uint64) (ecs.EntityID, error) {
	e, err := w.NewEntity()
	if err != nil {
		return 0, err
	}
	if err := ecs.Set(w, e, FetchRequest{DataType: dt, Path: path, UserData: userData}); err != nil {
		return 0, err
	}
	if err := ecs.Add[Loading](w, e); err != nil {
		return 0, err
	}
	return e, nil
}

// Pending reports the number of fetches not yet handed back.
func (l *Loader) Pending() int { return len(l.jobs) }

func (l *Loader) start(e ecs.EntityID, path string) {
	j := &job{done: make(chan struct{})}
	ok := l.group.TryGo(func() error {
		defer close(j.done)
		j.data, j.err = l.fetcher.Fetch(l.ctx, path)
		return nil
	})
	if ok {
		l.jobs[e] = j
	}
}

// poll is the fetch system. It starts missing fetches and completes the
// ones whose goroutine has finished.
func (l *Loader) poll(b *ecs.Batch) error {
	w := b.World()
	reqs, err := ecs.ColumnOf[FetchRequest](b)
	if err != nil {
		return err
	}
	for i, e := range b.Entities() {
		j, ok := l.jobs[e]
		if !ok {
			l.start(e, reqs.Get(i).Path)
			continue
		}
		select {
		case <-j.done:
		default:
			continue
		}
		delete(l.jobs, e)
		if j.err != nil {
			l.log.Warn("fetch failed", zap.Uint64("entity", uint64(e)), zap.Error(j.err))
			if err := ecs.Add[LoadFailed](w, e); err != nil {
				return err
			}
		} else {
			if err := reqs.Update(i, func(r *FetchRequest) { r.Data = j.data }); err != nil {
				return err
			}
			if err := ecs.Add[Loaded](w, e); err != nil {
				return err
			}
			l.log.Debug("fetch complete", zap.Uint64("entity", uint64(e)), zap.Int("bytes", len(j.data)))
		}
		if err := ecs.Remove[Loading](w, e); err != nil {
			return err
		}
	}
	return nil
}

// Close cancels outstanding fetches and waits for their goroutines.
func (l *Loader) Close() error {
	l.cancel()
	return l.group.Wait()
}
