package sandbox

import (
	"context"
	"net/url"

	"github.com/hashicorp/go-hclog"
	ps "github.com/mitchellh/go-ps"

	"github.com/kodidev/kodidev/internal/addon"
	"github.com/kodidev/kodidev/internal/env"
)

// Resolver supplies a runnable addon and its full dependency closure.
type Resolver interface {
	Request(ctx context.Context, id string) (*addon.Addon, error)
	LoadDependencies(ctx context.Context, root *addon.Addon) ([]*addon.Addon, error)
}

// Pool keeps at most one live worker per addon id. Invocations for the
// same addon reuse its worker; Close tears everything down.
type Pool struct {
	env      *env.Environment
	log      hclog.Logger
	resolver Resolver
	session  HostSession
	reuse    bool

	workers map[string]*Worker
}

func NewPool(e *env.Environment, log hclog.Logger, resolver Resolver, session HostSession, reuse bool) *Pool {
	return &Pool{
		env:      e,
		log:      log.Named("sandbox"),
		resolver: resolver,
		session:  session,
		reuse:    reuse,
		workers:  make(map[string]*Worker),
	}
}

// Execute routes a plugin:// callback URL to the worker for its addon,
// resolving the addon and its dependencies on first use.
func (p *Pool) Execute(ctx context.Context, u *url.URL) (*NavState, error) {
	id := u.Host

	w, ok := p.workers[id]
	if !ok {
		a, err := p.resolver.Request(ctx, id)
		if err != nil {
			return nil, err
		}
		deps, err := p.resolver.LoadDependencies(ctx, a)
		if err != nil {
			return nil, err
		}
		w = NewWorker(p.env, p.log, p.session, a, deps, p.reuse)
		p.workers[id] = w
	}

	return w.Execute(ctx, u)
}

// Close stops all workers and verifies none survived the shutdown.
func (p *Pool) Close() {
	pids := make(map[int]string)
	for id, w := range p.workers {
		if pid := w.Pid(); pid != 0 {
			pids[pid] = id
		}
		w.Stop()
	}
	p.workers = make(map[string]*Worker)

	if len(pids) == 0 {
		return
	}
	procs, err := ps.Processes()
	if err != nil {
		p.log.Debug("could not list processes for orphan check", "error", err)
		return
	}
	for _, proc := range procs {
		if id, ok := pids[proc.Pid()]; ok {
			p.log.Warn("worker survived shutdown", "addon", id, "pid", proc.Pid(), "executable", proc.Executable())
		}
	}
}
