package engine

import (
	lua "github.com/yuin/gopher-lua"
)

// Entity identifies one chat-side object exposed to submitted code.
type Entity struct {
	ID   int64
	Name string
}

// Bindings is the fixed mapping of identifiers a submission may
// reference: the chat context plus the engine host object. Submitted
// code has no implicit access to anything outside this mapping and the
// interpreter's own standard globals.
type Bindings struct {
	Channel Entity
	Author  Entity
	Guild   Entity
	Message Entity

	// Host carries engine-level fields exposed as the "sandbox" global.
	Host map[string]string
}

// installBindings publishes the bindings as globals and replaces print
// with a function writing to the invocation's private buffer. The
// replacement sink is what eliminates the shared-stream hazard of
// process-wide redirection.
func installBindings(L *lua.LState, out *lockedBuffer, b Bindings) {
	L.SetGlobal("channel", entityTable(L, b.Channel))
	L.SetGlobal("author", entityTable(L, b.Author))
	L.SetGlobal("guild", entityTable(L, b.Guild))
	L.SetGlobal("message", entityTable(L, b.Message))

	host := L.NewTable()
	for k, v := range b.Host {
		L.SetField(host, k, lua.LString(v))
	}
	L.SetGlobal("sandbox", host)

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		for i := 1; i <= top; i++ {
			if i > 1 {
				out.WriteString("\t")
			}
			out.WriteString(L.ToStringMeta(L.Get(i)).String())
		}
		out.WriteString("\n")
		return 0
	}))
}

func entityTable(L *lua.LState, e Entity) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "id", lua.LNumber(e.ID))
	L.SetField(t, "name", lua.LString(e.Name))
	return t
}
