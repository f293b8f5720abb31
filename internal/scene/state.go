package scene

// State is the scene graph shared by the render loop, the timeline
// bindings and the exporter. It is not safe for concurrent use: every
// mutation and every render happens on one control goroutine.
type State struct {
	Camera     *Camera
	Background Color

	Ambient     *AmbientLight
	Directional []*DirectionalLight
	RectAreas   []*RectAreaLight

	Meshes []*Mesh
}

func (s *State) Add(m *Mesh) {
	s.Meshes = append(s.Meshes, m)
}

// Mesh looks a mesh up by name.
func (s *State) Mesh(name string) *Mesh {
	for _, m := range s.Meshes {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Resize updates the camera aspect for a width x height viewport.
func (s *State) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	s.Camera.Aspect = float64(width) / float64(height)
	s.Camera.UpdateProjectionMatrix()
}
