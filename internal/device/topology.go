// Declarative description of the on-device processing graph
package device

import (
	_ "embed"
	"fmt"
	"image"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default_topology.yaml
var defaultTopology []byte

// ErrInvalidTopology wraps every topology validation failure
var ErrInvalidTopology = errors.New("invalid topology")

// NodeKind names a device processing block
type NodeKind string

const (
	KindMonoCamera        NodeKind = "mono_camera"
	KindColorCamera       NodeKind = "color_camera"
	KindStereoDepth       NodeKind = "stereo_depth"
	KindSpatialCalculator NodeKind = "spatial_location_calculator"
	KindXLinkOut          NodeKind = "xlink_out"
	KindXLinkIn           NodeKind = "xlink_in"
)

type ports struct {
	inputs  []string
	outputs []string
}

var kindPorts = map[NodeKind]ports{
	KindMonoCamera:        {outputs: []string{"out"}},
	KindColorCamera:       {outputs: []string{"video", "preview", "isp"}},
	KindStereoDepth:       {inputs: []string{"left", "right"}, outputs: []string{"depth", "disparity"}},
	KindSpatialCalculator: {inputs: []string{"inputDepth", "inputConfig"}, outputs: []string{"out", "passthroughDepth"}},
	KindXLinkOut:          {inputs: []string{"input"}},
	KindXLinkIn:           {outputs: []string{"out"}},
}

// Sensor resolutions by name
var resolutions = map[string]image.Point{
	"THE_400_P":  {X: 640, Y: 400},
	"THE_480_P":  {X: 640, Y: 480},
	"THE_720_P":  {X: 1280, Y: 720},
	"THE_800_P":  {X: 1280, Y: 800},
	"THE_1080_P": {X: 1920, Y: 1080},
	"THE_4_K":    {X: 3840, Y: 2160},
}

// Topology is a static dataflow graph: sensors, processing blocks and the
// host I/O streams connecting them.
type Topology struct {
	Name  string `yaml:"name"`
	Nodes []Node `yaml:"nodes"`
	Links []Link `yaml:"links"`
}

// Node is one block of the graph. Only the property group matching Kind is used.
type Node struct {
	Name    string        `yaml:"name"`
	Kind    NodeKind      `yaml:"kind"`
	Camera  *CameraProps  `yaml:"camera,omitempty"`
	Stereo  *StereoProps  `yaml:"stereo,omitempty"`
	Spatial *SpatialProps `yaml:"spatial,omitempty"`
	Stream  *StreamProps  `yaml:"stream,omitempty"`
}

type CameraProps struct {
	Socket      string `yaml:"socket"`
	Resolution  string `yaml:"resolution"`
	Interleaved bool   `yaml:"interleaved"`
	ColorOrder  string `yaml:"color_order,omitempty"`
	VideoSize   []int  `yaml:"video_size,omitempty"`
}

type StereoProps struct {
	Preset            string `yaml:"preset"`
	LeftRightCheck    bool   `yaml:"left_right_check"`
	Subpixel          bool   `yaml:"subpixel"`
	ExtendedDisparity bool   `yaml:"extended_disparity"`
}

type SpatialProps struct {
	LowerThreshold uint16   `yaml:"lower_threshold"`
	UpperThreshold uint16   `yaml:"upper_threshold"`
	Algorithm      string   `yaml:"algorithm"`
	WaitForConfig  bool     `yaml:"wait_for_config"`
	ROI            ROIProps `yaml:"roi"`
}

// ROIProps is a normalized rect given by two corners
type ROIProps struct {
	TopLeft     [2]float64 `yaml:"top_left"`
	BottomRight [2]float64 `yaml:"bottom_right"`
}

type StreamProps struct {
	Name      string `yaml:"name"`
	QueueSize int    `yaml:"queue_size,omitempty"`
	Blocking  bool   `yaml:"blocking"`
}

// Link connects "node.output" to "node.input"
type Link struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Endpoint is a parsed link end
type Endpoint struct {
	Node string
	Port string
}

func (e Endpoint) String() string { return e.Node + "." + e.Port }

// ParseEndpoint splits "node.port"
func ParseEndpoint(s string) (Endpoint, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return Endpoint{}, errors.Wrapf(ErrInvalidTopology, "malformed endpoint %q", s)
	}
	return Endpoint{Node: s[:i], Port: s[i+1:]}, nil
}

// DefaultTopology returns the built-in graph: two mono cameras into stereo
// depth into a spatial location calculator, plus the color video stream.
func DefaultTopology() (*Topology, error) {
	return ParseTopology(defaultTopology)
}

// DefaultTopologyYAML returns the embedded description
func DefaultTopologyYAML() []byte {
	out := make([]byte, len(defaultTopology))
	copy(out, defaultTopology)
	return out
}

// ParseTopology decodes and validates a YAML description
func ParseTopology(data []byte) (*Topology, error) {
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, "decode topology")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks node names, kinds, ports, links and stream names
func (t *Topology) Validate() error {
	if len(t.Nodes) == 0 {
		return errors.Wrap(ErrInvalidTopology, "no nodes")
	}

	seen := make(map[string]NodeKind, len(t.Nodes))
	streams := make(map[string]string)
	for _, n := range t.Nodes {
		if n.Name == "" {
			return errors.Wrap(ErrInvalidTopology, "node without name")
		}
		if _, dup := seen[n.Name]; dup {
			return errors.Wrapf(ErrInvalidTopology, "duplicate node %q", n.Name)
		}
		if _, ok := kindPorts[n.Kind]; !ok {
			return errors.Wrapf(ErrInvalidTopology, "node %q has unknown kind %q", n.Name, n.Kind)
		}
		seen[n.Name] = n.Kind

		if err := n.validateProps(); err != nil {
			return err
		}
		if n.Kind == KindXLinkIn || n.Kind == KindXLinkOut {
			if prev, dup := streams[n.Stream.Name]; dup {
				return errors.Wrapf(ErrInvalidTopology, "stream %q used by %q and %q", n.Stream.Name, prev, n.Name)
			}
			streams[n.Stream.Name] = n.Name
		}
	}

	inputs := make(map[string]bool)
	for _, l := range t.Links {
		from, err := ParseEndpoint(l.From)
		if err != nil {
			return err
		}
		to, err := ParseEndpoint(l.To)
		if err != nil {
			return err
		}
		if err := checkPort(seen, from, false); err != nil {
			return err
		}
		if err := checkPort(seen, to, true); err != nil {
			return err
		}
		if inputs[to.String()] {
			return errors.Wrapf(ErrInvalidTopology, "input %s linked twice", to)
		}
		inputs[to.String()] = true
	}
	return nil
}

func (n Node) validateProps() error {
	switch n.Kind {
	case KindMonoCamera, KindColorCamera:
		if n.Camera == nil {
			return errors.Wrapf(ErrInvalidTopology, "camera %q has no camera properties", n.Name)
		}
		if _, ok := resolutions[n.Camera.Resolution]; !ok {
			return errors.Wrapf(ErrInvalidTopology, "camera %q has unknown resolution %q", n.Name, n.Camera.Resolution)
		}
		if len(n.Camera.VideoSize) != 0 && len(n.Camera.VideoSize) != 2 {
			return errors.Wrapf(ErrInvalidTopology, "camera %q video_size needs width and height", n.Name)
		}
	case KindSpatialCalculator:
		if n.Spatial == nil {
			return errors.Wrapf(ErrInvalidTopology, "calculator %q has no spatial properties", n.Name)
		}
		if n.Spatial.LowerThreshold >= n.Spatial.UpperThreshold {
			return errors.Wrapf(ErrInvalidTopology, "calculator %q thresholds %d..%d", n.Name, n.Spatial.LowerThreshold, n.Spatial.UpperThreshold)
		}
		if _, err := ParseAlgorithm(n.Spatial.Algorithm); err != nil {
			return errors.Wrapf(ErrInvalidTopology, "calculator %q: %v", n.Name, err)
		}
	case KindXLinkIn, KindXLinkOut:
		if n.Stream == nil || n.Stream.Name == "" {
			return errors.Wrapf(ErrInvalidTopology, "xlink %q has no stream name", n.Name)
		}
	}
	return nil
}

func checkPort(nodes map[string]NodeKind, e Endpoint, input bool) error {
	kind, ok := nodes[e.Node]
	if !ok {
		return errors.Wrapf(ErrInvalidTopology, "link references unknown node %q", e.Node)
	}
	available := kindPorts[kind].outputs
	if input {
		available = kindPorts[kind].inputs
	}
	for _, p := range available {
		if p == e.Port {
			return nil
		}
	}
	dir := "output"
	if input {
		dir = "input"
	}
	return errors.Wrapf(ErrInvalidTopology, "%s node %q has no %s %q", kind, e.Node, dir, e.Port)
}

// Node returns the node with the given name
func (t *Topology) Node(name string) (Node, bool) {
	for _, n := range t.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// NodesOfKind returns nodes of one kind in declaration order
func (t *Topology) NodesOfKind(kind NodeKind) []Node {
	var out []Node
	for _, n := range t.Nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Source returns the output endpoint feeding the given input, if linked
func (t *Topology) Source(to Endpoint) (Endpoint, bool) {
	for _, l := range t.Links {
		if l.To == to.String() {
			from, err := ParseEndpoint(l.From)
			if err != nil {
				return Endpoint{}, false
			}
			return from, true
		}
	}
	return Endpoint{}, false
}

// Targets returns every input endpoint fed by the given output
func (t *Topology) Targets(from Endpoint) []Endpoint {
	var out []Endpoint
	for _, l := range t.Links {
		if l.From == from.String() {
			if to, err := ParseEndpoint(l.To); err == nil {
				out = append(out, to)
			}
		}
	}
	return out
}

// OutputStream returns the host stream an output port is published on
func (t *Topology) OutputStream(from Endpoint) (StreamProps, error) {
	for _, to := range t.Targets(from) {
		n, ok := t.Node(to.Node)
		if ok && n.Kind == KindXLinkOut {
			return *n.Stream, nil
		}
	}
	return StreamProps{}, errors.Wrapf(ErrUnknownStream, "%s is not published to the host", from)
}

// InputStream returns the host stream feeding an input port
func (t *Topology) InputStream(to Endpoint) (StreamProps, error) {
	from, ok := t.Source(to)
	if ok {
		if n, found := t.Node(from.Node); found && n.Kind == KindXLinkIn {
			return *n.Stream, nil
		}
	}
	return StreamProps{}, errors.Wrapf(ErrUnknownStream, "%s is not fed by the host", to)
}

// Stream returns the xlink node for a stream name
func (t *Topology) Stream(name string) (Node, error) {
	for _, n := range t.Nodes {
		if (n.Kind == KindXLinkIn || n.Kind == KindXLinkOut) && n.Stream.Name == name {
			return n, nil
		}
	}
	return Node{}, errors.Wrapf(ErrUnknownStream, "%q", name)
}

// SpatialCalculator returns the single spatial calculator node
func (t *Topology) SpatialCalculator() (Node, error) {
	nodes := t.NodesOfKind(KindSpatialCalculator)
	if len(nodes) != 1 {
		return Node{}, errors.Wrapf(ErrInvalidTopology, "expected one spatial calculator, found %d", len(nodes))
	}
	return nodes[0], nil
}

// Size returns the sensor size of a camera node
func (c CameraProps) Size() image.Point {
	return resolutions[c.Resolution]
}

// VideoFrameSize returns the configured video size, or the sensor size
func (c CameraProps) VideoFrameSize() image.Point {
	if len(c.VideoSize) == 2 {
		return image.Pt(c.VideoSize[0], c.VideoSize[1])
	}
	return c.Size()
}

// InitialConfig returns the calculator's initial ROI request
func (s SpatialProps) InitialConfig() SpatialConfigData {
	algo, err := ParseAlgorithm(s.Algorithm)
	if err != nil {
		algo = AlgorithmMedian
	}
	return SpatialConfigData{
		ROI: NewRectFromPoints(
			r2.Point{X: s.ROI.TopLeft[0], Y: s.ROI.TopLeft[1]},
			r2.Point{X: s.ROI.BottomRight[0], Y: s.ROI.BottomRight[1]},
			true,
		),
		Thresholds: DepthThresholds{Lower: s.LowerThreshold, Upper: s.UpperThreshold},
		Algorithm:  algo,
	}
}

func (t *Topology) String() string {
	return fmt.Sprintf("%s (%d nodes, %d links)", t.Name, len(t.Nodes), len(t.Links))
}
