package domain

// Point 表示画布上的一个坐标点。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke 表示一次连续的绘画笔划：有序的点序列加上颜色、粗细和作者。
// ID 在 draw-start 时由服务端分配，后续的 draw-move 通过作者的当前笔划
// 定位到它，避免多个作者并发绘画时互相串线。
type Stroke struct {
	ID       string  `json:"id"`
	Points   []Point `json:"points"`
	Color    string  `json:"color"`
	Size     float64 `json:"size"`
	AuthorID string  `json:"authorId"`
}

// Clone 返回笔划的深拷贝，Points 切片不共享底层数组。
// 房间状态在锁内拷贝后再做广播或持久化，避免并发修改。
func (s Stroke) Clone() Stroke {
	cloned := s
	cloned.Points = make([]Point, len(s.Points))
	copy(cloned.Points, s.Points)
	return cloned
}

// CloneStrokes 深拷贝整个笔划序列。
func CloneStrokes(strokes []Stroke) []Stroke {
	cloned := make([]Stroke, len(strokes))
	for i, s := range strokes {
		cloned[i] = s.Clone()
	}
	return cloned
}
