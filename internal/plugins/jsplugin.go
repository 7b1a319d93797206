package plugins

import (
	"fmt"
	"os"

	"github.com/dop251/goja"
)

// LoadJSBundle evaluates a JS plugin file in an isolated goja runtime and
// adapts its exported { id, name?, description?, configSchema?, register }
// object into a Bundle.
//
// The script is expected to assign `module.exports = {...}` (CommonJS shape).
func LoadJSBundle(path string) (Bundle, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("plugins: reading %s: %w", path, err)
	}

	vm := goja.New()
	module := vm.NewObject()
	exports := vm.NewObject()
	_ = module.Set("exports", exports)
	_ = vm.Set("module", module)
	_ = vm.Set("exports", exports)

	if _, err := vm.RunScript(path, string(src)); err != nil {
		return Bundle{}, fmt.Errorf("plugins: evaluating %s: %w", path, err)
	}

	exportsVal := module.Get("exports")
	obj := exportsVal.ToObject(vm)
	if obj == nil {
		return Bundle{}, fmt.Errorf("plugins: %s did not export an object", path)
	}

	id, _ := obj.Get("id").Export().(string)
	if id == "" {
		return Bundle{}, fmt.Errorf("plugins: %s exports no id", path)
	}
	name, _ := obj.Get("name").Export().(string)
	desc, _ := obj.Get("description").Export().(string)

	var schema ConfigSchema
	if schemaVal := obj.Get("configSchema"); schemaVal != nil && !goja.IsUndefined(schemaVal) && !goja.IsNull(schemaVal) {
		schema = &jsConfigSchema{vm: vm, value: schemaVal}
	}

	registerVal := obj.Get("register")
	registerFn, _ := goja.AssertFunction(registerVal)

	return Bundle{
		ID:          id,
		Name:        name,
		Description: desc,
		ConfigSchema: schema,
		Register: func(api *API) error {
			if registerFn == nil {
				return nil
			}
			jsAPI := buildJSAPI(vm, api)
			_, err := registerFn(goja.Undefined(), jsAPI)
			return err
		},
	}, nil
}

type jsConfigSchema struct {
	vm    *goja.Runtime
	value goja.Value
}

func (s *jsConfigSchema) Parse(value map[string]interface{}) error {
	obj := s.value.ToObject(s.vm)
	parseFn, ok := goja.AssertFunction(obj.Get("parse"))
	if !ok {
		return fmt.Errorf("plugins: configSchema has no parse method")
	}
	_, err := parseFn(s.value, s.vm.ToValue(value))
	return err
}

// buildJSAPI exposes the register(api) surface to the goja VM.
func buildJSAPI(vm *goja.Runtime, api *API) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("registerGatewayMethod", func(name string, handler goja.Callable) {
		_ = api.RegisterGatewayMethod(name, func(params map[string]interface{}) (interface{}, error) {
			v, err := handler(goja.Undefined(), vm.ToValue(params))
			if err != nil {
				return nil, err
			}
			return v.Export(), nil
		})
	})
	_ = obj.Set("registerTool", func(spec goja.Value) {
		specObj := spec.ToObject(vm)
		name, _ := specObj.Get("name").Export().(string)
		params, _ := specObj.Get("parameters").Export().(map[string]interface{})
		execute, _ := goja.AssertFunction(specObj.Get("execute"))
		_ = api.RegisterTool(ToolSpec{
			Name:       name,
			Parameters: params,
			Execute: func(args map[string]interface{}) (string, error) {
				if execute == nil {
					return "", nil
				}
				v, err := execute(goja.Undefined(), vm.ToValue(args))
				if err != nil {
					return "", err
				}
				return v.String(), nil
			},
		})
	})
	_ = obj.Set("registerCli", func(fn goja.Callable) {
		api.RegisterCLI(func() { _, _ = fn(goja.Undefined()) })
	})
	_ = obj.Set("registerService", func(spec goja.Value) {
		specObj := spec.ToObject(vm)
		id, _ := specObj.Get("id").Export().(string)
		start, _ := goja.AssertFunction(specObj.Get("start"))
		stop, _ := goja.AssertFunction(specObj.Get("stop"))
		_ = api.RegisterService(Service{
			ID: id,
			Start: func() error {
				if start == nil {
					return nil
				}
				_, err := start(goja.Undefined())
				return err
			},
			Stop: func() error {
				if stop == nil {
					return nil
				}
				_, err := stop(goja.Undefined())
				return err
			},
		})
	})
	_ = obj.Set("pluginConfig", api.Config)
	return obj
}
