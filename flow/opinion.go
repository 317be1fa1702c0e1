package flow

// OpinionKind 审批结果
type OpinionKind = string

const (
	OpinionKindPass   OpinionKind = "pass"
	OpinionKindReject OpinionKind = "reject"
)

// Opinion 审批意见, 创建之后不可修改
type Opinion struct {
	kind   OpinionKind
	advice string
}

func PassOpinion(advice string) Opinion {
	return Opinion{kind: OpinionKindPass, advice: advice}
}

func RejectOpinion(advice string) Opinion {
	return Opinion{kind: OpinionKindReject, advice: advice}
}

// NewOpinion 从存储的字段还原审批意见, 未知的类型按拒绝处理
func NewOpinion(kind OpinionKind, advice string) Opinion {
	if kind == OpinionKindPass {
		return PassOpinion(advice)
	}
	return RejectOpinion(advice)
}

func (o Opinion) Kind() OpinionKind { return o.kind }
func (o Opinion) Advice() string    { return o.advice }

func (o Opinion) IsSuccess() bool {
	return o.kind == OpinionKindPass
}
