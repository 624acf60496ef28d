package embedding

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float32
		want    float64
		wantErr bool
	}{
		{
			name: "identical vectors",
			a:    []float32{0.5, 0.5, 0.5},
			b:    []float32{0.5, 0.5, 0.5},
			want: 1.0,
		},
		{
			name: "orthogonal vectors",
			a:    []float32{1, 0},
			b:    []float32{0, 1},
			want: 0.0,
		},
		{
			name: "opposite vectors",
			a:    []float32{1, 2, 3},
			b:    []float32{-1, -2, -3},
			want: -1.0,
		},
		{
			name: "zero vector yields zero",
			a:    []float32{0, 0, 0},
			b:    []float32{1, 2, 3},
			want: 0.0,
		},
		{
			name:    "length mismatch",
			a:       []float32{1, 2},
			b:       []float32{1, 2, 3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("CosineSimilarity failed: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestFindTopK(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{0, 1},       // orthogonal
		{1, 0.1},     // close
		{1, 0},       // exact
		{-1, 0},      // opposite
		{2, 0},       // exact direction, different magnitude
		{1, 0, 0, 0}, // wrong dimensions, skipped
	}

	got := FindTopK(query, candidates, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}

	// Candidates 2 and 4 point the same way; the tie keeps input order.
	wantIdx := []int{2, 4, 1}
	for i, want := range wantIdx {
		if got[i].Index != want {
			t.Errorf("rank %d: index %d, want %d", i+1, got[i].Index, want)
		}
	}
	if math.Abs(got[0].Similarity-1.0) > 1e-6 {
		t.Errorf("top similarity %f, want 1.0", got[0].Similarity)
	}

	all := FindTopK(query, candidates, 0)
	if len(all) != 5 {
		t.Errorf("k=0 should rank all valid candidates, got %d", len(all))
	}
	if all[len(all)-1].Index != 3 {
		t.Errorf("opposite vector should rank last, got index %d", all[len(all)-1].Index)
	}
}
