package flow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// BindData 流程上绑定的业务数据, 引擎不关心内容, 只按类型标识存取
type BindData interface {
	BindDataType() string
}

// BindDataSnapshot 业务数据快照, 每次提交都会新建一个版本, 已有的快照不会被修改
type BindDataSnapshot struct {
	ID        int64
	ProcessID string
	RecordID  int64 // 产生这个快照的流程记录, 发起时为0
	Version   int64
	DataType  string
	Payload   []byte
	CreatedAt int64
}

// BindDataDecoder 把快照里的字节还原成具体类型
type BindDataDecoder func(payload []byte) (BindData, error)

// BindDataRegistry 类型标识 -> 解码器
type BindDataRegistry struct {
	decoders sync.Map
}

func NewBindDataRegistry() *BindDataRegistry {
	r := &BindDataRegistry{}
	// 默认注册表单数据
	_ = r.Register(FormDataType, func(payload []byte) (BindData, error) {
		return NewFormData(payload), nil
	})
	return r
}

func (r *BindDataRegistry) Register(dataType string, decoder BindDataDecoder) error {
	if dataType == "" {
		return errors.Wrapf(ErrFlowParamInvalid, "bind data type is empty")
	}
	if decoder == nil {
		return errors.New("decoder is nil")
	}
	if _, loaded := r.decoders.LoadOrStore(dataType, decoder); loaded {
		return errors.New(fmt.Sprintf("bind data type already registered, type: %s", dataType))
	}
	return nil
}

// RegisterBindDataType 注册一个 json 编码的业务数据类型, T 一般是结构体指针
func RegisterBindDataType[T BindData](r *BindDataRegistry, dataType string) error {
	return r.Register(dataType, func(payload []byte) (BindData, error) {
		var v T
		typ := reflect.TypeOf(v)
		if typ != nil && typ.Kind() == reflect.Ptr {
			v = reflect.New(typ.Elem()).Interface().(T)
			if err := json.Unmarshal(payload, v); err != nil {
				return nil, errors.Wrapf(ErrFlowParamInvalid, "decode bind data failed, type: %s, err: %v", dataType, err)
			}
			return v, nil
		}
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, errors.Wrapf(ErrFlowParamInvalid, "decode bind data failed, type: %s, err: %v", dataType, err)
		}
		return v, nil
	})
}

func (r *BindDataRegistry) IsRegistered(dataType string) bool {
	_, ok := r.decoders.Load(dataType)
	return ok
}

// NewSnapshot 生成一个未持久化的快照, 未注册的类型直接拒绝
func (r *BindDataRegistry) NewSnapshot(processID string, recordID int64, data BindData) (*BindDataSnapshot, error) {
	if data == nil {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "bind data is nil, processID: %s", processID)
	}
	if !r.IsRegistered(data.BindDataType()) {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "bind data type not registered: %s", data.BindDataType())
	}
	var payload []byte
	var err error
	if formData, ok := data.(*FormData); ok {
		payload, err = formData.ToBytes()
	} else {
		payload, err = json.Marshal(data)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "marshal bind data failed, type: %s, err: %v", data.BindDataType(), err)
	}
	return &BindDataSnapshot{
		ProcessID: processID,
		RecordID:  recordID,
		DataType:  data.BindDataType(),
		Payload:   payload,
	}, nil
}

func (r *BindDataRegistry) Decode(snapshot *BindDataSnapshot) (BindData, error) {
	if snapshot == nil {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "snapshot is nil")
	}
	i, ok := r.decoders.Load(snapshot.DataType)
	if !ok {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "bind data type not registered: %s", snapshot.DataType)
	}
	decoder, ok := i.(BindDataDecoder)
	if !ok {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "bind data decoder type error: %s", snapshot.DataType)
	}
	return decoder(snapshot.Payload)
}

const FormDataType = "form"

// FormData 默认的业务数据, 一个可以按路径读写的 json 对象
type FormData struct {
	data map[string]any
}

func NewFormData(b []byte) *FormData {
	f := &FormData{data: make(map[string]any)}
	if len(b) > 0 {
		json.Unmarshal(b, &f.data)
	}
	return f
}

func NewFormDataFromMap(m map[string]any) *FormData {
	if m == nil {
		m = make(map[string]any)
	}
	return &FormData{data: m}
}

func (f *FormData) BindDataType() string { return FormDataType }

// Get 获取值，支持嵌套路径
// 例如: Get("leave", "days") 获取 leave.days
func (f *FormData) Get(keys ...string) (any, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	current := any(f.data)
	for _, key := range keys {
		currentMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, exists := currentMap[key]
		if !exists {
			return nil, false
		}
		current = val
	}
	return current, true
}

func (f *FormData) GetString(keys ...string) (string, bool) {
	val, ok := f.Get(keys...)
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt64 json 解出来的数字是 float64, 一起兼容
func (f *FormData) GetInt64(keys ...string) (int64, bool) {
	val, ok := f.Get(keys...)
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	}
	return 0, false
}

func (f *FormData) GetBool(keys ...string) (bool, bool) {
	val, ok := f.Get(keys...)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Set 设置值，中间路径不是 map 的会被覆盖
func (f *FormData) Set(keys []string, value any) error {
	if len(keys) == 0 {
		return fmt.Errorf("keys cannot be empty")
	}
	current := f.data
	for _, key := range keys[:len(keys)-1] {
		nextMap, ok := current[key].(map[string]any)
		if !ok {
			nextMap = make(map[string]any)
			current[key] = nextMap
		}
		current = nextMap
	}
	current[keys[len(keys)-1]] = value
	return nil
}

func (f *FormData) ToBytes() ([]byte, error) {
	return json.Marshal(f.data)
}

func (f *FormData) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.data)
}

func (f *FormData) ToMap() map[string]any {
	return f.data
}

// Unmarshal 将表单反序列化到指定结构体
func (f *FormData) Unmarshal(v any) error {
	b, err := f.ToBytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
