package program

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer/shader"
	"go.uber.org/zap"
)

// ErrUnknownProgram is returned by Recompile for programs not created by a Compiler.
var ErrUnknownProgram = errors.New("program was not created by this compiler")

// Stage is a compiled shader stage. Handle is the driver's compilation unit.
type Stage struct {
	Shader shader.Shader
	Handle any
}

// Driver is the GPU facing half of program compilation. Renderer backends implement it.
type Driver interface {
	// CompileStage compiles one shader stage. The error text is used as the diagnostic.
	//
	// Parameters:
	//   - s: the reflected shader source
	//
	// Returns:
	//   - Stage: the compiled stage
	//   - error: the driver diagnostic if compilation failed
	CompileStage(s shader.Shader) (Stage, error)

	// ReleaseStage destroys a compilation unit returned by CompileStage.
	//
	// Parameters:
	//   - st: the stage to release
	ReleaseStage(st Stage)

	// LinkProgram links compiled stages into a driver program.
	//
	// Parameters:
	//   - p: the program being linked, providing its key, kind and fixed function state
	//   - stages: one compiled stage per stage of the program kind, in Kind.Stages order
	//
	// Returns:
	//   - any: the driver handle stored on the program
	//   - error: the driver diagnostic if linking failed
	LinkProgram(p Program, stages []Stage) (any, error)

	// ReleaseProgram destroys a handle returned by LinkProgram.
	//
	// Parameters:
	//   - handle: the handle to release
	ReleaseProgram(handle any)
}

// compiler is the implementation of the Compiler interface.
type compiler struct {
	// mu serializes builds so recompilation from a reload event never interleaves with a compile.
	mu       *sync.Mutex
	driver   Driver
	binder   Binder
	observer func(p Program, err error)
}

// Compiler turns kernel source files into programs. Every call returns a program object,
// whatever the outcome, so call sites can guard on its State.
type Compiler interface {
	// CompileCompute reads, compiles and links a compute program.
	//
	// Parameters:
	//   - key: a unique identifier for the program
	//   - path: the compute shader source file
	//   - opts: variadic list of ProgramBuilderOption functions
	//
	// Returns:
	//   - ComputeProgram: the program, Linked on success
	//   - error: a *common.Error (or a join of them) describing what failed
	CompileCompute(key, path string, opts ...ProgramBuilderOption) (ComputeProgram, error)

	// CompileRender reads, compiles and links a render program.
	//
	// Parameters:
	//   - key: a unique identifier for the program
	//   - vertexPath: the vertex shader source file
	//   - fragmentPath: the fragment shader source file
	//   - opts: variadic list of ProgramBuilderOption functions
	//
	// Returns:
	//   - RenderProgram: the program, Linked on success
	//   - error: a *common.Error (or a join of them) describing what failed
	CompileRender(key, vertexPath, fragmentPath string, opts ...ProgramBuilderOption) (RenderProgram, error)

	// Recompile re-reads the program's sources and links them again. On success the
	// previous handle is released. On failure a Linked program keeps its previous handle.
	//
	// Parameters:
	//   - p: a program returned by this compiler
	//
	// Returns:
	//   - error: the failure of the new attempt, nil if the program was relinked
	Recompile(p Program) error
}

var _ Compiler = &compiler{}

// NewCompiler creates a Compiler on top of the given driver.
//
// Parameters:
//   - driver: the backend that compiles and links stages
//   - options: variadic list of CompilerBuilderOption functions
//
// Returns:
//   - Compiler: the new compiler
func NewCompiler(driver Driver, options ...CompilerBuilderOption) Compiler {
	c := &compiler{
		mu:     &sync.Mutex{},
		driver: driver,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *compiler) CompileCompute(key, path string, opts ...ProgramBuilderOption) (ComputeProgram, error) {
	p := newProgram(key, KindCompute, c.programOptions(opts)...)
	p.paths[shader.ShaderTypeCompute] = path
	return p, c.build(p)
}

func (c *compiler) CompileRender(key, vertexPath, fragmentPath string, opts ...ProgramBuilderOption) (RenderProgram, error) {
	p := newProgram(key, KindRender, c.programOptions(opts)...)
	p.paths[shader.ShaderTypeVertex] = vertexPath
	p.paths[shader.ShaderTypeFragment] = fragmentPath
	return p, c.build(p)
}

func (c *compiler) Recompile(p Program) error {
	impl, ok := p.(*program)
	if !ok {
		return ErrUnknownProgram
	}
	return c.build(impl)
}

func (c *compiler) programOptions(opts []ProgramBuilderOption) []ProgramBuilderOption {
	if c.binder == nil {
		return opts
	}
	return append([]ProgramBuilderOption{WithBinder(c.binder)}, opts...)
}

// build loads every stage source and links them. An I/O failure stops before the driver
// is involved and leaves the program state as it was.
func (c *compiler) build(p *program) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := common.Logger().With(zap.String("program", p.key), zap.Stringer("kind", p.kind))
	shaders := make(map[shader.ShaderType]shader.Shader, len(p.paths))
	for _, stage := range p.kind.Stages() {
		path := p.paths[stage]
		s, err := shader.NewShader(p.key+"."+stage.String(), stage, path)
		if err != nil {
			log.Error("failed to load shader source", zap.Stringer("stage", stage), zap.String("path", path), zap.Error(err))
			c.observe(p, err)
			return err
		}
		shaders[stage] = s
	}

	err := c.link(p, shaders, log)
	c.observe(p, err)
	return err
}

func (c *compiler) link(p *program, shaders map[shader.ShaderType]shader.Shader, log *zap.Logger) error {
	var stages []Stage
	defer func() {
		for _, st := range stages {
			c.driver.ReleaseStage(st)
		}
	}()

	var diag Diagnostics
	var errs []error
	for _, stage := range p.kind.Stages() {
		s := shaders[stage]

		var st Stage
		var err error
		if s.EntryPoint() == "" {
			err = fmt.Errorf("error: no @%s entry point declared", stage)
		} else {
			st, err = c.driver.CompileStage(s)
		}
		if err != nil {
			e := common.NewError(common.KindStageCompile, "compile", s.Key(), err.Error(), nil)
			if diag.Stages == nil {
				diag.Stages = make(map[shader.ShaderType]string)
			}
			diag.Stages[stage] = e.Diagnostic
			log.Error("stage compilation failed", zap.Stringer("stage", stage), zap.String("diagnostic", e.Diagnostic))
			errs = append(errs, e)
			continue
		}
		stages = append(stages, st)
	}

	if len(errs) > 0 {
		diag.Link = fmt.Sprintf("link skipped: %d stage(s) failed to compile", len(errs))
		state := p.recordFailure(diag)
		log.Error("program link skipped", zap.String("diagnostic", diag.Link), zap.Stringer("state", state))
		return errors.Join(errs...)
	}

	if p.State() != StateLinked {
		p.setState(StateCompiled, Diagnostics{})
	}

	handle, err := c.driver.LinkProgram(p, stages)
	if err != nil {
		e := common.NewError(common.KindProgramLink, "link", p.key, err.Error(), nil)
		state := p.recordFailure(Diagnostics{Link: e.Diagnostic})
		log.Error("program link failed", zap.String("diagnostic", e.Diagnostic), zap.Stringer("state", state))
		return e
	}

	if old := p.install(handle, shaders, c.driver.ReleaseProgram); old != nil {
		c.driver.ReleaseProgram(old)
	}
	log.Info("program linked")
	return nil
}

func (c *compiler) observe(p Program, err error) {
	if c.observer != nil {
		c.observer(p, err)
	}
}
