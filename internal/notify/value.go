package notify

// Value 通知附加数据的封闭联合类型（string | int | float | bool | map）。
// 取代任意的 map[string]interface{}，保证编码与脱敏处理可穷举。
type Value interface {
	isValue()
}

type String string

type Int int64

type Float float64

type Bool bool

// Map 嵌套数据
type Map map[string]Value

func (String) isValue() {}
func (Int) isValue()    {}
func (Float) isValue()  {}
func (Bool) isValue()   {}
func (Map) isValue()    {}

// Notification 一条待投递的通知。
// 引擎视角是 fire-and-forget：投递失败只记日志，绝不影响订单操作本身。
type Notification struct {
	RecipientID string `json:"recipient_id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Data        Map    `json:"data,omitempty"`
}
