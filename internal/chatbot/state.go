// Package chatbot 实现了每个请求的对话工作流控制器。
//
// 控制器是一个线性状态机：每个入站请求持有一个独立的 Context，
// 从入口状态开始逐个执行状态，直到某个状态产出终端响应。
// 状态集合是封闭的枚举，状态间的数据只通过 Context 传递。
package chatbot

// State 标识工作流中的一个状态。
type State int

const (
	// StateAuthenticate 聊天轮次的入口状态：解码 bearer 凭证。
	StateAuthenticate State = iota
	// StateValidateMessage 校验请求携带的转写格式。
	StateValidateMessage
	// StateManageSession 获取或创建用户的当前会话。
	StateManageSession
	// StateSaveUserMessage 把本轮用户消息写入会话。
	StateSaveUserMessage
	// StateGenerateResponse 调用 LLM 生成助手回复与可选的条件草稿。
	StateGenerateResponse
	// StateSaveAssistantMessage 把助手消息写入会话并产出普通响应。
	StateSaveAssistantMessage
	// StateConfirmRequirements 确认请求的入口状态：持久化条件草稿。
	StateConfirmRequirements
	// StateSearchListings 用已确认的条件检索候选房源 URL。
	StateSearchListings
	// StateExtractListings 抓取候选 URL 并提取结构化房源。
	StateExtractListings
	// StateSaveListings 持久化提取出的房源并产出最终响应。
	StateSaveListings
)

func (s State) String() string {
	switch s {
	case StateAuthenticate:
		return "Authenticate"
	case StateValidateMessage:
		return "ValidateMessage"
	case StateManageSession:
		return "ManageSession"
	case StateSaveUserMessage:
		return "SaveUserMessage"
	case StateGenerateResponse:
		return "GenerateResponse"
	case StateSaveAssistantMessage:
		return "SaveAssistantMessage"
	case StateConfirmRequirements:
		return "ConfirmRequirements"
	case StateSearchListings:
		return "SearchListings"
	case StateExtractListings:
		return "ExtractListings"
	case StateSaveListings:
		return "SaveListings"
	default:
		return "Unknown"
	}
}

// stateErrorMessage 是协作方调用失败时各状态对外的 500 错误文案。
func stateErrorMessage(s State) string {
	switch s {
	case StateManageSession:
		return "Failed to manage chat session"
	case StateSaveUserMessage:
		return "Failed to save user message"
	case StateGenerateResponse:
		return "Failed to generate AI response"
	case StateSaveAssistantMessage:
		return "Failed to save AI message"
	case StateConfirmRequirements:
		return "Failed to confirm search"
	case StateSearchListings:
		return "Failed to perform property search"
	case StateExtractListings:
		return "Failed to extract property listings"
	case StateSaveListings:
		return "Failed to save properties"
	default:
		return "Failed to process chat request"
	}
}
