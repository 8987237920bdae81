/*
Copyright © 2024 the mixmodels authors.
This file is part of mixmodels.

mixmodels is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mixmodels is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mixmodels.  If not, see <http://www.gnu.org/licenses/>.
*/

package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type scenarioKey struct {
	model, scenario string
	version         int
}

type memScenario struct {
	annotations map[string]string
	history     []Commit
	pars        map[string]map[string]ParRow
	solution    map[string][]ParRow
	session     string
}

func (s *memScenario) copyPars() map[string]map[string]ParRow {
	o := make(map[string]map[string]ParRow, len(s.pars))
	for name, rows := range s.pars {
		m := make(map[string]ParRow, len(rows))
		for k, r := range rows {
			m[k] = r
		}
		o[name] = m
	}
	return o
}

// Memory is a Platform held in memory. It is safe for concurrent use.
type Memory struct {
	Name string

	mu        sync.Mutex
	scenarios map[scenarioKey]*memScenario
}

// NewMemory returns an empty in-memory platform with the given name.
func NewMemory(name string) *Memory {
	return &Memory{Name: name, scenarios: make(map[scenarioKey]*memScenario)}
}

// latest returns the highest version of model and scenario, or 0.
func (m *Memory) latest(model, scenario string) int {
	v := 0
	for k := range m.scenarios {
		if k.model == model && k.scenario == scenario && k.version > v {
			v = k.version
		}
	}
	return v
}

func (m *Memory) resolve(ref Ref) (scenarioKey, *memScenario, error) {
	v := ref.Version
	if v == 0 {
		v = m.latest(ref.Model, ref.Scenario)
	}
	k := scenarioKey{ref.Model, ref.Scenario, v}
	s, ok := m.scenarios[k]
	if !ok {
		return k, nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return k, s, nil
}

func (m *Memory) ref(k scenarioKey) Ref {
	return Ref{Platform: m.Name, Model: k.model, Scenario: k.scenario, Version: k.version}
}

// Create adds a new, empty version of the given model and scenario.
func (m *Memory) Create(ctx context.Context, model, scenario string) (Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scenarioKey{model, scenario, m.latest(model, scenario) + 1}
	m.scenarios[k] = &memScenario{
		annotations: make(map[string]string),
		pars:        make(map[string]map[string]ParRow),
		solution:    make(map[string][]ParRow),
	}
	return m.ref(k), nil
}

// Get implements Platform.
func (m *Memory) Get(ctx context.Context, ref Ref) (*Scenario, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, s, err := m.resolve(ref)
	if err != nil {
		return nil, err
	}
	o := &Scenario{
		Ref:         m.ref(k),
		Annotations: make(map[string]string, len(s.annotations)),
		History:     append([]Commit(nil), s.history...),
		Solved:      len(s.solution) > 0,
	}
	for key, v := range s.annotations {
		o.Annotations[key] = v
	}
	return o, nil
}

// Clone implements Platform.
func (m *Memory) Clone(ctx context.Context, src Ref, model, scenario string, keepHistory bool) (Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s, err := m.resolve(src)
	if err != nil {
		return Ref{}, err
	}
	k := scenarioKey{model, scenario, m.latest(model, scenario) + 1}
	c := &memScenario{
		annotations: make(map[string]string),
		pars:        s.copyPars(),
		solution:    make(map[string][]ParRow),
	}
	if keepHistory {
		for key, v := range s.annotations {
			c.annotations[key] = v
		}
		c.history = append(c.history, s.history...)
	}
	m.scenarios[k] = c
	return m.ref(k), nil
}

// Pars implements Platform.
func (m *Memory) Pars(ctx context.Context, ref Ref, name string) ([]ParRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s, err := m.resolve(ref)
	if err != nil {
		return nil, err
	}
	return sortedRows(s.pars[name]), nil
}

func sortedRows(m map[string]ParRow) []ParRow {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	o := make([]ParRow, len(keys))
	for i, k := range keys {
		o[i] = m[k]
	}
	return o
}

// Solution implements Platform.
func (m *Memory) Solution(ctx context.Context, ref Ref, name string) ([]ParRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s, err := m.resolve(ref)
	if err != nil {
		return nil, err
	}
	return append([]ParRow(nil), s.solution[name]...), nil
}

// SetSolution stores the rows of a solution variable, as a solver would.
func (m *Memory) SetSolution(ctx context.Context, ref Ref, name string, rows []ParRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s, err := m.resolve(ref)
	if err != nil {
		return err
	}
	s.solution[name] = append([]ParRow(nil), rows...)
	return nil
}

// Close implements Platform.
func (m *Memory) Close() error { return nil }

// Checkout implements Platform.
func (m *Memory) Checkout(ctx context.Context, ref Ref) (Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, s, err := m.resolve(ref)
	if err != nil {
		return nil, err
	}
	if s.session != "" {
		return nil, fmt.Errorf("%w: %s (session %s)", ErrLocked, m.ref(k), s.session)
	}
	s.session = uuid.New().String()
	return &memTx{
		m:           m,
		key:         k,
		session:     s.session,
		pars:        s.copyPars(),
		annotations: make(map[string]string),
	}, nil
}

type memTx struct {
	m           *Memory
	key         scenarioKey
	session     string
	pars        map[string]map[string]ParRow
	annotations map[string]string
	done        bool
}

func (t *memTx) Ref() Ref { return t.m.ref(t.key) }

func (t *memTx) AddPar(ctx context.Context, name string, rows []ParRow) error {
	if t.done {
		return ErrDone
	}
	p, ok := t.pars[name]
	if !ok {
		p = make(map[string]ParRow)
		t.pars[name] = p
	}
	for _, r := range rows {
		p[r.key()] = r
	}
	return nil
}

func (t *memTx) RemovePar(ctx context.Context, name string, rows []ParRow) error {
	if t.done {
		return ErrDone
	}
	if rows == nil {
		delete(t.pars, name)
		return nil
	}
	for _, r := range rows {
		delete(t.pars[name], r.key())
	}
	return nil
}

func (t *memTx) SetAnnotation(ctx context.Context, key, value string) error {
	if t.done {
		return ErrDone
	}
	t.annotations[key] = value
	return nil
}

func (t *memTx) Commit(ctx context.Context, message string) error {
	if t.done {
		return ErrDone
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	s := t.m.scenarios[t.key]
	s.pars = t.pars
	for k, v := range t.annotations {
		s.annotations[k] = v
	}
	s.history = append(s.history, Commit{Session: t.session, Message: message})
	s.solution = make(map[string][]ParRow)
	s.session = ""
	t.done = true
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrDone
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.scenarios[t.key].session = ""
	t.done = true
	return nil
}
