package prompt

// reactFormatInstructions is appended to every scenario system prompt. The
// keywords stay English because the reply parser keys on them; everything
// else follows the scenario language.
const reactFormatInstructions = `## 推理格式（REQUIRED FORMAT）

你必须使用 ReAct 推理格式回复，格式关键字为英文，其余内容使用中文：

Thought: 分析当前状况，说明下一步行动的理由
Action: 工具名称（必须出自可用工具列表）
Action Input: 工具参数，JSON 对象；无参数时写 {}

处置全部完成时改为：

Thought: 说明处置已经完成的依据
Final Answer: 面向值班管理员的处置总结

格式规则：
- 每次回复只包含一个 Thought，随后是一个 Action 或一个 Final Answer，不能两者都有
- 不要自行编写 Observation，工具执行结果由系统返回
- Action Input 必须是合法 JSON，不要包在代码块里
- 关键字 Thought、Action、Action Input、Final Answer 后必须紧跟英文冒号`

// taskInstruction closes the reasoning user message.
const taskInstruction = `## 你的任务
依照处置规程继续推进当前事件：缺少必填信息先追问，信息齐备后评估风险，按提示完成强制动作，全部完成后生成处置报告并给出 Final Answer。`

// retryPreamble frames the format feedback sent after an unparseable reply.
const retryPreamble = `你上一条回复不符合要求的推理格式，无法解析。`
