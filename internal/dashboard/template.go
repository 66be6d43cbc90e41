package dashboard

import (
	"html/template"
	"strings"
)

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"lower": func(v any) string {
		if s, ok := v.(interface{ String() string }); ok {
			return strings.ToLower(s.String())
		}
		return ""
	},
	"selected": func(a, b any) bool { return a == b },
}).Parse(pageHTML))

const pageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 760px; margin: 0 auto; }
        .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 20px; border-radius: 10px; margin-bottom: 20px; text-align: center; }
        .header h1 { margin: 0; font-size: 2em; }
        .card { background: white; border-radius: 10px; padding: 20px; margin-bottom: 20px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); }
        .card h3 { margin-top: 0; color: #333; border-bottom: 2px solid #eee; padding-bottom: 10px; }
        label { display: block; font-weight: 500; color: #666; margin-top: 10px; }
        input, select { width: 100%; padding: 6px; box-sizing: border-box; }
        button { margin-top: 16px; width: 100%; padding: 10px; font-size: 1em; background: #667eea; color: white; border: none; border-radius: 6px; cursor: pointer; }
        .banner { padding: 14px; border-radius: 8px; font-size: 1.3em; font-weight: bold; margin-bottom: 12px; }
        .banner-failure { background: #f8d7da; color: #721c24; }
        .banner-ok { background: #d4edda; color: #155724; }
        .banner-error { background: #343a40; color: #ffc107; }
        .errors { background: #fff3cd; color: #856404; padding: 10px 14px; border-radius: 8px; }
        .progress-bar { width: 100%; height: 20px; background-color: #eee; border-radius: 10px; overflow: hidden; margin: 10px 0; }
        .progress-fill { height: 100%; }
        .band-low { background-color: #28a745; }
        .band-medium { background-color: #ffc107; }
        .band-high { background-color: #dc3545; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 6px; border-bottom: 1px solid #eee; font-size: 0.9em; }
        .footer { text-align: center; color: #888; font-size: 0.85em; margin-top: 30px; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h1>{{.Title}}</h1>
        <p>{{.Subtitle}}</p>
    </div>

    <div class="card">
        <h3>Machine Parameters</h3>
        {{if .Errors}}
        <div class="errors" id="input-errors">
            <strong>Please correct the following:</strong>
            <ul>{{range .Errors}}<li>{{.}}</li>{{end}}</ul>
        </div>
        {{end}}
        <form method="POST" action="/predict">
            <label for="type">Machine Type</label>
            <select id="type" name="type">
                {{range .Types}}<option value="{{.}}"{{if selected . $.Reading.Type}} selected{{end}}>{{.}}</option>{{end}}
            </select>

            <label for="air_temperature">Air Temperature (K)</label>
            <input id="air_temperature" name="air_temperature" type="number" min="{{.Limits.AirTemperature.Min}}" max="{{.Limits.AirTemperature.Max}}" step="{{.Limits.AirTemperature.Step}}" value="{{.Reading.AirTemperature}}">

            <label for="process_temperature">Process Temperature (K)</label>
            <input id="process_temperature" name="process_temperature" type="number" min="{{.Limits.ProcessTemperature.Min}}" max="{{.Limits.ProcessTemperature.Max}}" step="{{.Limits.ProcessTemperature.Step}}" value="{{.Reading.ProcessTemperature}}">

            <label for="rotational_speed">Rotational Speed (rpm)</label>
            <input id="rotational_speed" name="rotational_speed" type="number" min="{{.Limits.RotationalSpeed.Min}}" max="{{.Limits.RotationalSpeed.Max}}" step="{{.Limits.RotationalSpeed.Step}}" value="{{.Reading.RotationalSpeed}}">

            <label for="torque">Torque (Nm)</label>
            <input id="torque" name="torque" type="number" min="{{.Limits.Torque.Min}}" max="{{.Limits.Torque.Max}}" step="{{.Limits.Torque.Step}}" value="{{.Reading.Torque}}">

            <label for="tool_wear">Tool Wear (min)</label>
            <input id="tool_wear" name="tool_wear" type="number" min="{{.Limits.ToolWear.Min}}" max="{{.Limits.ToolWear.Max}}" step="{{.Limits.ToolWear.Step}}" value="{{.Reading.ToolWear}}">

            <button type="submit">Predict Machine Failure</button>
        </form>
    </div>

    {{with .Failure}}
    <div class="card" id="result">
        <div class="banner banner-error">⛔ {{.Title}}</div>
        <p>{{.Detail}}</p>
    </div>
    {{end}}

    {{with .Result}}
    <div class="card" id="result">
        <h3>Prediction Result</h3>
        {{if .FailureLikely}}
        <div class="banner banner-failure">⚠️ Machine Failure Likely</div>
        {{else}}
        <div class="banner banner-ok">✅ No Immediate Machine Failure Detected</div>
        {{end}}
        <p><strong>Failure Probability:</strong> <span id="probability">{{.ProbabilityText}}</span></p>
        <p><strong>Risk Level:</strong> <span id="risk-band">{{.Band.Indicator}} {{.Band}}</span></p>
        <div class="progress-bar"><div class="progress-fill band-{{lower .Band}}" style="width: {{.Percent}}%"></div></div>
        <h3>Recommended Action</h3>
        <p id="advice">{{.Advice}}</p>
    </div>
    {{end}}

    {{if .History}}
    <div class="card">
        <h3>Recent Assessments</h3>
        <table>
            <tr><th>Time</th><th>Type</th><th>Probability</th><th>Risk</th></tr>
            {{range .History}}
            <tr><td>{{.AssessedAt.Format "2006-01-02 15:04:05"}}</td><td>{{.Reading.Type}}</td><td>{{.ProbabilityText}}</td><td>{{.Band.Indicator}} {{.Band}}</td></tr>
            {{end}}
        </table>
    </div>
    {{end}}

    <div class="footer">
        <p>{{.Footer}}</p>
        {{if .ModelVersion}}<p>Model version {{.ModelVersion}}</p>{{end}}
    </div>
</div>
</body>
</html>
`
