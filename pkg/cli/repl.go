// pkg/cli/repl.go
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"weave/pkg/doc"
	"weave/pkg/types"
)

// REPL provides a Read-Eval-Print Loop for inspecting and editing a
// weave document interactively. Commands operate on the root map; text
// commands follow a root key holding a text object.
type REPL struct {
	// doc is the open document
	doc *doc.Document

	// path is where the document is saved, empty for in-memory
	path string

	// shell handles input/output and command parsing
	shell *Shell

	// output is where results are written
	output io.Writer

	// errOutput is where errors are written
	errOutput io.Writer

	// running indicates if the REPL is currently running
	running bool

	// exitRequested indicates that .exit was called
	exitRequested bool
}

// NewREPL creates a new REPL over the document at path, starting from
// an empty document if the file does not exist. An empty path means a
// fresh in-memory document.
func NewREPL(path string, output, errOutput io.Writer) (*REPL, error) {
	return NewREPLWithInput(path, os.Stdin, output, errOutput)
}

// NewREPLWithInput creates a new REPL with custom input/output streams.
// This is useful for testing or scripted operation.
func NewREPLWithInput(path string, input io.Reader, output, errOutput io.Writer) (*REPL, error) {
	var d *doc.Document
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := doc.LoadFile(path, doc.LoadOptions{})
			if err != nil {
				return nil, fmt.Errorf("failed to load document: %w", err)
			}
			d = loaded
		}
	}
	if d == nil {
		d = doc.New()
	}

	shell := NewShell(input, output, errOutput)

	return &REPL{
		doc:       d,
		path:      path,
		shell:     shell,
		output:    output,
		errOutput: errOutput,
	}, nil
}

// Document returns the REPL's underlying document.
func (r *REPL) Document() *doc.Document {
	return r.doc
}

// Run starts the REPL loop, reading and executing commands until EOF
// or .exit.
func (r *REPL) Run() {
	r.running = true
	r.exitRequested = false

	fmt.Fprintln(r.output, "weave document shell")
	fmt.Fprintln(r.output, "Enter \".help\" for usage hints.")

	for r.running && !r.exitRequested {
		line, eof := r.shell.ReadCommand()

		if eof && line == "" {
			fmt.Fprintln(r.output)
			break
		}

		line = strings.TrimSpace(line)
		if line != "" {
			if strings.HasPrefix(line, ".") {
				r.handleDotCommand(line)
			} else if err := r.Execute(line); err != nil {
				r.printError(err)
			}
		}

		if eof {
			break
		}
	}

	r.running = false
}

// Execute runs a single command line against the document.
func (r *REPL) Execute(line string) error {
	fields := Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "put":
		if len(fields) != 3 {
			return fmt.Errorf("usage: put <key> <value>")
		}
		return r.doc.Put(doc.Root, fields[1], parseValue(fields[2]))
	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get <key>")
		}
		res, ok := r.doc.Get(doc.Root, fields[1])
		if !ok {
			fmt.Fprintln(r.output, "(not set)")
			return nil
		}
		conflict := ""
		if res.Conflict {
			conflict = " (conflict)"
		}
		fmt.Fprintf(r.output, "%s%s\n", res.Value, conflict)
		return nil
	case "getall":
		if len(fields) != 2 {
			return fmt.Errorf("usage: getall <key>")
		}
		for _, res := range r.doc.GetAll(doc.Root, fields[1]) {
			fmt.Fprintf(r.output, "%s @ %s\n", res.Value, res.ID)
		}
		return nil
	case "del":
		if len(fields) != 2 {
			return fmt.Errorf("usage: del <key>")
		}
		return r.doc.Delete(doc.Root, fields[1])
	case "inc":
		if len(fields) != 3 {
			return fmt.Errorf("usage: inc <key> <delta>")
		}
		delta, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return fmt.Errorf("bad delta %q", fields[2])
		}
		return r.doc.Increment(doc.Root, fields[1], delta)
	case "keys":
		keys, err := r.doc.Keys(doc.Root)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(r.output, k)
		}
		return nil
	case "settext":
		if len(fields) != 3 {
			return fmt.Errorf("usage: settext <key> <text>")
		}
		text, err := r.doc.PutObject(doc.Root, fields[1], types.ObjTypeText)
		if err != nil {
			return err
		}
		return r.doc.SpliceText(text, 0, 0, fields[2])
	case "text":
		if len(fields) != 2 {
			return fmt.Errorf("usage: text <key>")
		}
		obj, err := r.textAt(fields[1])
		if err != nil {
			return err
		}
		s, err := r.doc.Text(obj)
		if err != nil {
			return err
		}
		fmt.Fprintln(r.output, s)
		return nil
	case "splice":
		if len(fields) != 5 {
			return fmt.Errorf("usage: splice <key> <pos> <del> <text>")
		}
		obj, err := r.textAt(fields[1])
		if err != nil {
			return err
		}
		pos, err1 := strconv.Atoi(fields[2])
		del, err2 := strconv.Atoi(fields[3])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("bad position")
		}
		return r.doc.SpliceText(obj, pos, del, fields[4])
	case "len":
		if len(fields) != 2 {
			return fmt.Errorf("usage: len <key>")
		}
		obj, err := r.objAt(fields[1])
		if err != nil {
			return err
		}
		n, err := r.doc.Length(obj)
		if err != nil {
			return err
		}
		fmt.Fprintln(r.output, n)
		return nil
	case "heads":
		for _, h := range r.doc.GetHeads() {
			fmt.Fprintln(r.output, h)
		}
		return nil
	case "actor":
		fmt.Fprintln(r.output, r.doc.Actor())
		return nil
	case "save":
		path := r.path
		if len(fields) == 2 {
			path = fields[1]
		}
		if path == "" {
			return fmt.Errorf("usage: save <file>")
		}
		if err := os.WriteFile(path, r.doc.Save(), 0644); err != nil {
			return err
		}
		r.path = path
		return nil
	case "open":
		if len(fields) != 2 {
			return fmt.Errorf("usage: open <file>")
		}
		d, err := doc.LoadFile(fields[1], doc.LoadOptions{})
		if err != nil {
			return err
		}
		r.doc = d
		r.path = fields[1]
		return nil
	default:
		return fmt.Errorf("unknown command %q; try .help", fields[0])
	}
}

// objAt resolves a root key to the object it holds.
func (r *REPL) objAt(key string) (types.ObjID, error) {
	res, ok := r.doc.Get(doc.Root, key)
	if !ok {
		return types.ObjID{}, fmt.Errorf("no value at %q", key)
	}
	if _, err := r.doc.ObjectType(res.ID); err != nil {
		return types.ObjID{}, types.ErrNotAnObject
	}
	return res.ID, nil
}

// textAt resolves a root key to the text object it holds.
func (r *REPL) textAt(key string) (types.ObjID, error) {
	obj, err := r.objAt(key)
	if err != nil {
		return types.ObjID{}, err
	}
	typ, err := r.doc.ObjectType(obj)
	if err != nil {
		return types.ObjID{}, err
	}
	if typ != types.ObjTypeText {
		return types.ObjID{}, types.NewInvalidOpError("text", typ)
	}
	return obj, nil
}

// parseValue interprets a command argument as a scalar: null, booleans,
// integers, floats, counter:N, or a plain string.
func parseValue(s string) types.Value {
	switch s {
	case "null":
		return types.NewNull()
	case "true":
		return types.NewBool(true)
	case "false":
		return types.NewBool(false)
	}
	if rest, ok := strings.CutPrefix(s, "counter:"); ok {
		if n, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return types.NewCounter(n)
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.NewInt(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.NewFloat(f)
	}
	return types.NewStr(s)
}

// handleDotCommand executes a meta command (.help, .exit, ...).
func (r *REPL) handleDotCommand(cmd string) {
	switch Fields(cmd)[0] {
	case ".help":
		r.printHelp()
	case ".exit", ".quit":
		r.exitRequested = true
	case ".history":
		for _, h := range r.shell.History() {
			fmt.Fprintln(r.output, h)
		}
	default:
		fmt.Fprintf(r.errOutput, "unknown command: %s\n", cmd)
	}
}

func (r *REPL) printHelp() {
	help := `Commands:
  put <key> <value>                set a scalar at a root key
  get <key>                        show the winning value at a key
  getall <key>                     show every conflicting value at a key
  del <key>                        delete a key
  inc <key> <delta>                increment a counter
  keys                             list root keys
  settext <key> <text>             create a text object at a key
  text <key>                       show a text object's content
  splice <key> <pos> <del> <text>  edit a text object
  len <key>                        object length
  heads                            current change heads
  actor                            this replica's actor id
  save [file]                      save the document
  open <file>                      load a document
  .history                         show command history
  .exit                            leave the shell`
	fmt.Fprintln(r.output, help)
}

func (r *REPL) printError(err error) {
	fmt.Fprintf(r.errOutput, "error: %v\n", err)
}
