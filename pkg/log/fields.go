package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameVersion   = "version"
	FieldNameMode      = "mode"
	FieldNamePosition  = "position"
	FieldNameLayout    = "layout"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldVersion 返回序列化器的调用方版本号字段。
func FieldVersion(version int) zap.Field {
	return zap.Int(FieldNameVersion, version)
}

// FieldMode 返回序列化器读写模式字段。
func FieldMode(loading bool) zap.Field {
	if loading {
		return zap.String(FieldNameMode, "reading")
	}
	return zap.String(FieldNameMode, "writing")
}

// FieldPosition 返回游标位置字段。
func FieldPosition(pos int) zap.Field {
	return zap.Int(FieldNamePosition, pos)
}

// FieldLayout 返回字段布局描述。
func FieldLayout(layout string) zap.Field {
	return zap.String(FieldNameLayout, layout)
}
