// Package visualizer renders view payloads as standalone D3.js pages.
package visualizer

import (
	"bytes"
	"encoding/json"
	"html/template"
	"os"
	"path/filepath"

	"github.com/athapong/cardiograph/pkg/graph"
)

// The HTML template for D3.js visualization
const d3Template = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Cardiology Knowledge Graph</title>
    <script src="https://d3js.org/d3.v7.min.js"></script>
    <style>
        body {
            margin: 0;
            font-family: Arial, sans-serif;
        }
        #graph {
            width: 100%;
            height: 100vh;
            background-color: #f5f5f5;
        }
        .node {
            stroke: #fff;
            stroke-width: 1.5px;
        }
        .node.central {
            stroke: #333;
            stroke-width: 3px;
        }
        .link {
            stroke-opacity: 0.6;
        }
        .node-label {
            font-size: 10px;
            pointer-events: none;
        }
        .controls {
            position: absolute;
            top: 10px;
            left: 10px;
            background-color: rgba(255,255,255,0.8);
            padding: 10px;
            border-radius: 5px;
            box-shadow: 0 0 10px rgba(0,0,0,0.1);
        }
        .legend span {
            display: inline-block;
            width: 12px;
            height: 12px;
            margin-right: 4px;
            vertical-align: middle;
        }
    </style>
</head>
<body>
    <div id="graph"></div>
    <div class="controls">
        <h3>{{.Title}}</h3>
        <p>{{.Description}}</p>
        <p>Nodes: {{.NodeCount}}, Links: {{.LinkCount}}</p>
        <div class="legend">
            <div><span style="background:#2166ac"></span>System 1 (intuitive)</div>
            <div><span style="background:#b2182b"></span>System 2 (analytical)</div>
            <div><span style="background:#762a83"></span>Both systems</div>
            <div><span style="background:#999"></span>Unclassified</div>
        </div>
    </div>

    <script>
        const graphData = {{.GraphData}};

        function linkColor(d) {
            if (d.system1 && d.system2) return "#762a83";
            if (d.system1) return "#2166ac";
            if (d.system2) return "#b2182b";
            return "#999";
        }

        const simulation = d3.forceSimulation(graphData.nodes)
            .force("link", d3.forceLink(graphData.links).id(d => d.id).distance(120))
            .force("charge", d3.forceManyBody().strength(-300))
            .force("center", d3.forceCenter(window.innerWidth / 2, window.innerHeight / 2));

        const svg = d3.select("#graph")
            .append("svg")
            .attr("width", "100%")
            .attr("height", "100%")
            .call(d3.zoom().on("zoom", (event) => {
                g.attr("transform", event.transform);
            }));

        const g = svg.append("g");

        const nodeTypes = [...new Set(graphData.nodes.map(node => node.group))];
        const colorScale = d3.scaleOrdinal(d3.schemeCategory10).domain(nodeTypes);

        const link = g.append("g")
            .selectAll("line")
            .data(graphData.links)
            .enter()
            .append("line")
            .attr("class", "link")
            .attr("stroke", linkColor)
            .attr("stroke-width", d => Math.sqrt(d.value) * 2);

        const node = g.append("g")
            .selectAll("circle")
            .data(graphData.nodes)
            .enter()
            .append("circle")
            .attr("class", d => d.central ? "node central" : "node")
            .attr("r", d => Math.sqrt(d.value) * 2.5)
            .attr("fill", d => colorScale(d.group))
            .call(d3.drag()
                .on("start", dragstarted)
                .on("drag", dragged)
                .on("end", dragended));

        const label = g.append("g")
            .selectAll("text")
            .data(graphData.nodes)
            .enter()
            .append("text")
            .attr("class", "node-label")
            .attr("dx", 12)
            .attr("dy", ".35em")
            .text(d => d.label);

        node.append("title")
            .text(d => d.label + " (" + d.type + ")");

        link.append("title")
            .text(d => d.label + " (confidence " + d.confidence.toFixed(2) + ")");

        simulation.on("tick", () => {
            link
                .attr("x1", d => d.source.x)
                .attr("y1", d => d.source.y)
                .attr("x2", d => d.target.x)
                .attr("y2", d => d.target.y);

            node
                .attr("cx", d => d.x)
                .attr("cy", d => d.y);

            label
                .attr("x", d => d.x)
                .attr("y", d => d.y);
        });

        function dragstarted(event, d) {
            if (!event.active) simulation.alphaTarget(0.3).restart();
            d.fx = d.x;
            d.fy = d.y;
        }

        function dragged(event, d) {
            d.fx = event.x;
            d.fy = event.y;
        }

        function dragended(event, d) {
            if (!event.active) simulation.alphaTarget(0);
            d.fx = null;
            d.fy = null;
        }
    </script>
</body>
</html>
`

// D3Visualizer writes view payloads as self-contained D3.js HTML pages.
// Links are color-coded by their dual-process flags.
type D3Visualizer struct {
	outputPath string
}

// NewD3Visualizer creates a visualizer writing to outputPath.
func NewD3Visualizer(outputPath string) *D3Visualizer {
	return &D3Visualizer{
		outputPath: outputPath,
	}
}

// Visualize renders one view to the output file.
func (v *D3Visualizer) Visualize(view *graph.View) error {
	dir := filepath.Dir(v.outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	payload, err := json.Marshal(struct {
		Nodes []graph.ViewNode `json:"nodes"`
		Links []graph.ViewLink `json:"links"`
	}{view.Nodes, view.Links})
	if err != nil {
		return err
	}

	tmpl, err := template.New("d3").Parse(d3Template)
	if err != nil {
		return err
	}

	data := struct {
		Title       string
		Description string
		GraphData   template.JS
		NodeCount   int
		LinkCount   int
	}{
		Title:       view.CentralEntity,
		Description: view.Description,
		GraphData:   template.JS(payload),
		NodeCount:   len(view.Nodes),
		LinkCount:   len(view.Links),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}

	return os.WriteFile(v.outputPath, buf.Bytes(), 0644)
}
