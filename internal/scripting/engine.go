package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/toxoid/toxoid-go/internal/core/ecs"
	"github.com/toxoid/toxoid-go/internal/schema"
)

// Engine wraps a single gopher-lua VM bound to one world.
// Single-goroutine access only, and only between ticks.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
	w   *ecs.World
}

// NewEngine creates a Lua VM exposing the authoring API for w.
func NewEngine(w *ecs.World, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log, w: w}
	for name, fn := range map[string]lua.LGFunction{
		"component": e.luaComponent,
		"tag":       e.luaTag,
		"spawn":     e.luaSpawn,
		"destroy":   e.luaDestroy,
		"add":       e.luaAdd,
		"remove":    e.luaRemove,
		"has":       e.luaHas,
		"set":       e.luaSet,
		"get":       e.luaGet,
		"child_of":  e.luaChildOf,
		"parent":    e.luaParent,
		"singleton": e.luaSingleton,
	} {
		vm.SetGlobal(name, vm.NewFunction(fn))
	}
	return e
}

// Load runs the scripts of dir. Component definitions under components/ run
// before scenes/, then the top-level files, each group in file name order.
func (e *Engine) Load(dir string) error {
	for _, sub := range []string{"components", "scenes", ""} {
		if err := e.loadDir(filepath.Join(dir, sub)); err != nil {
			return fmt.Errorf("load %s scripts: %w", dir, err)
		}
	}
	return nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString runs a chunk of Lua source.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// Global returns a global Lua value, mostly for tests and tooling.
func (e *Engine) Global(name string) lua.LValue {
	return e.vm.GetGlobal(name)
}

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// raise turns a Go error into a Lua error so pcall can catch it.
func raise(L *lua.LState, err error) int {
	L.RaiseError("%s", err.Error())
	return 0
}

// component(name, {{field, kind}, ...}) registers a component and returns its id.
func (e *Engine) luaComponent(L *lua.LState) int {
	def := schema.Definition{Name: L.CheckString(1)}
	if fields, ok := L.Get(2).(*lua.LTable); ok {
		var ferr error
		fields.ForEach(func(_, v lua.LValue) {
			if ferr != nil {
				return
			}
			f, err := fieldOf(v)
			if err != nil {
				ferr = fmt.Errorf("component %s: %w", def.Name, err)
				return
			}
			def.Fields = append(def.Fields, f)
		})
		if ferr != nil {
			return raise(L, ferr)
		}
	} else if L.GetTop() >= 2 && L.Get(2) != lua.LNil {
		L.ArgError(2, "field table expected")
	}
	return e.register(L, def)
}

// tag(name) registers a zero-field component.
func (e *Engine) luaTag(L *lua.LState) int {
	return e.register(L, schema.Definition{Name: L.CheckString(1)})
}

func (e *Engine) register(L *lua.LState, def schema.Definition) int {
	d, err := schema.Describe(def)
	if err != nil {
		return raise(L, err)
	}
	id, err := e.w.RegisterDescriptor(d)
	if err != nil {
		return raise(L, err)
	}
	e.log.Debug("lua component registered", zap.String("name", d.Name), zap.Uint32("id", uint32(id)))
	L.Push(lua.LNumber(id))
	return 1
}

// fieldOf accepts {"x", "i32"} or {name = "x", kind = "i32"}.
func fieldOf(v lua.LValue) (schema.Field, error) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return schema.Field{}, fmt.Errorf("field must be a table, got %s", v.Type())
	}
	name, kind := t.RawGetInt(1), t.RawGetInt(2)
	if name == lua.LNil {
		name, kind = t.RawGetString("name"), t.RawGetString("kind")
	}
	ns, ok1 := name.(lua.LString)
	ks, ok2 := kind.(lua.LString)
	if !ok1 || !ok2 {
		return schema.Field{}, fmt.Errorf("field needs a name and a kind")
	}
	k, err := schema.ParseKind(string(ks))
	if err != nil {
		return schema.Field{}, fmt.Errorf("field %s: %w", ns, err)
	}
	return schema.Field{Name: string(ns), Kind: k}, nil
}

func (e *Engine) checkEntity(L *lua.LState, n int) ecs.EntityID {
	f := float64(L.CheckNumber(n))
	if f <= 0 || f != math.Trunc(f) || f > 1<<53 {
		L.ArgError(n, "entity id expected")
	}
	return ecs.EntityID(f)
}

func (e *Engine) checkComponent(L *lua.LState, n int) ecs.ComponentID {
	name := L.CheckString(n)
	id, ok := e.w.Lookup(name)
	if !ok {
		L.ArgError(n, fmt.Sprintf("unknown component %q", name))
	}
	return id
}

// spawn() creates an entity and returns its id.
func (e *Engine) luaSpawn(L *lua.LState) int {
	id, err := e.w.NewEntity()
	if err != nil {
		return raise(L, err)
	}
	L.Push(lua.LNumber(id))
	return 1
}

func (e *Engine) luaDestroy(L *lua.LState) int {
	if err := e.w.Destroy(e.checkEntity(L, 1)); err != nil {
		return raise(L, err)
	}
	return 0
}

// add(e, name) attaches a zeroed component.
func (e *Engine) luaAdd(L *lua.LState) int {
	ent, c := e.checkEntity(L, 1), e.checkComponent(L, 2)
	if err := e.w.AddID(ent, c); err != nil {
		return raise(L, err)
	}
	return 0
}

func (e *Engine) luaRemove(L *lua.LState) int {
	ent, c := e.checkEntity(L, 1), e.checkComponent(L, 2)
	if err := e.w.RemoveID(ent, c); err != nil {
		return raise(L, err)
	}
	return 0
}

func (e *Engine) luaHas(L *lua.LState) int {
	ent, c := e.checkEntity(L, 1), e.checkComponent(L, 2)
	L.Push(lua.LBool(e.w.HasID(ent, c)))
	return 1
}

// set(e, name, field, value) attaches the component if needed and writes one field.
func (e *Engine) luaSet(L *lua.LState) int {
	ent, c := e.checkEntity(L, 1), e.checkComponent(L, 2)
	field := L.CheckString(3)
	v, err := toGo(L.CheckAny(4))
	if err != nil {
		L.ArgError(4, err.Error())
	}
	if err := e.w.AddID(ent, c); err != nil {
		return raise(L, err)
	}
	acc, err := e.w.GetID(ent, c)
	if err != nil {
		return raise(L, err)
	}
	if err := acc.Set(field, v); err != nil {
		return raise(L, err)
	}
	return 0
}

// get(e, name, field) reads one field.
func (e *Engine) luaGet(L *lua.LState) int {
	ent, c := e.checkEntity(L, 1), e.checkComponent(L, 2)
	field := L.CheckString(3)
	acc, err := e.w.GetID(ent, c)
	if err != nil {
		return raise(L, err)
	}
	v, err := acc.Get(field)
	if err != nil {
		return raise(L, err)
	}
	L.Push(toLua(v))
	return 1
}

// child_of(child, parent) sets the single parent edge of child.
func (e *Engine) luaChildOf(L *lua.LState) int {
	if err := e.w.ChildOf(e.checkEntity(L, 1), e.checkEntity(L, 2)); err != nil {
		return raise(L, err)
	}
	return 0
}

// parent(e) returns the parent id or nil.
func (e *Engine) luaParent(L *lua.LState) int {
	p, ok := e.w.Parent(e.checkEntity(L, 1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(p))
	return 1
}

// singleton(name [, {field = value, ...}]) creates the world instance of a
// registered component and optionally writes fields into it.
func (e *Engine) luaSingleton(L *lua.LState) int {
	c := e.checkComponent(L, 1)
	if err := e.w.AddSingletonID(c); err != nil {
		return raise(L, err)
	}
	values, ok := L.Get(2).(*lua.LTable)
	if !ok {
		return 0
	}
	acc, err := e.w.SingletonID(c)
	if err != nil {
		return raise(L, err)
	}
	var serr error
	values.ForEach(func(k, v lua.LValue) {
		if serr != nil {
			return
		}
		gv, err := toGo(v)
		if err == nil {
			err = acc.Set(k.String(), gv)
		}
		serr = err
	})
	if serr != nil {
		return raise(L, serr)
	}
	return 0
}

func toGo(v lua.LValue) (any, error) {
	switch x := v.(type) {
	case lua.LNumber:
		return float64(x), nil
	case lua.LString:
		return string(x), nil
	case lua.LBool:
		return bool(x), nil
	}
	return nil, fmt.Errorf("cannot store a %s in a component field", v.Type())
}

func toLua(v any) lua.LValue {
	switch x := v.(type) {
	case int64:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case []byte:
		return lua.LString(x)
	}
	return lua.LNil
}
