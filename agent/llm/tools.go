package llm

import (
	"github.com/cloudwego/eino/schema"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
)

// ToolInfos maps a node's actions onto eino tool definitions.
func ToolInfos(node *flow.Node) []*schema.ToolInfo {
	if node == nil {
		return nil
	}

	infos := make([]*schema.ToolInfo, 0, len(node.Actions))
	for _, action := range node.Actions {
		params := make(map[string]*schema.ParameterInfo, len(action.Params))
		for _, p := range action.Params {
			params[p.Name] = &schema.ParameterInfo{
				Type:     dataType(p.Type),
				Desc:     p.Description,
				Required: p.Required,
			}
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        action.Name,
			Desc:        action.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}

func dataType(t flow.ParamType) schema.DataType {
	switch t {
	case flow.ParamBoolean:
		return schema.Boolean
	default:
		return schema.String
	}
}
