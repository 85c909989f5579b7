package menutree

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/menutree/internal/apperr"
	"github.com/starford/menutree/internal/models"
)

func TestPlanMove_BeforeRootSibling(t *testing.T) {
	records := []models.MenuRecord{rec(1, 0, 2), rec(2, 0, 1), rec(3, 1, 1)}

	plan, err := PlanMove(records, 3, 2, RelationBefore)
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	wantOps := []models.MoveOp{{ID: 3, TargetID: models.Int64Ptr(2), Position: models.PositionBefore}}
	if diff := cmp.Diff(wantOps, plan.Ops); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
	wantAs := []Assignment{{ID: 3, ParentID: nil, SortOrder: 0}}
	if diff := cmp.Diff(wantAs, plan.Assignments); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}

	res := Build(applyAssignments(records, plan.Assignments))
	if got := res.Forest.RootIDs(); !slices.Equal(got, []int64{3, 2, 1}) {
		t.Errorf("roots = %v, want [3 2 1]", got)
	}
}

func TestPlanMove_InsideAppends(t *testing.T) {
	records := []models.MenuRecord{rec(1, 0, 0), rec(2, 1, 4), rec(3, 1, 9), rec(4, 0, 1)}

	plan, err := PlanMove(records, 4, 1, RelationInside)
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	want := []Assignment{{ID: 4, ParentID: models.Int64Ptr(1), SortOrder: 10}}
	if diff := cmp.Diff(want, plan.Assignments); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanMove_InsideEmptyParent(t *testing.T) {
	records := []models.MenuRecord{rec(1, 0, 0), rec(2, 0, 1)}
	plan, err := PlanMove(records, 2, 1, RelationInside)
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	want := []Assignment{{ID: 2, ParentID: models.Int64Ptr(1), SortOrder: 0}}
	if diff := cmp.Diff(want, plan.Assignments); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanMove_VirtualRootPromotes(t *testing.T) {
	records := []models.MenuRecord{rec(1, 0, 3), rec(2, 0, 7), rec(3, 1, 0)}

	plan, err := PlanMove(records, 3, VirtualRoot, RelationInside)
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	if plan.Ops[0].TargetID != nil || plan.Ops[0].Position != models.PositionInside {
		t.Errorf("op = %+v, want top-level inside", plan.Ops[0])
	}
	want := []Assignment{{ID: 3, ParentID: nil, SortOrder: 8}}
	if diff := cmp.Diff(want, plan.Assignments); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanMove_VirtualRootOnlyInside(t *testing.T) {
	records := []models.MenuRecord{rec(1, 0, 0), rec(2, 0, 1)}
	if _, err := PlanMove(records, 2, VirtualRoot, RelationBefore); !errors.Is(err, apperr.ErrInvalidMove) {
		t.Errorf("err = %v, want ErrInvalidMove", err)
	}
	if _, err := PlanMove(records, VirtualRoot, 1, RelationInside); !errors.Is(err, apperr.ErrInvalidMove) {
		t.Errorf("err = %v, want ErrInvalidMove", err)
	}
}

func TestPlanMove_InterpolatesBetweenNeighbours(t *testing.T) {
	records := []models.MenuRecord{rec(1, 0, 0), rec(2, 0, 10), rec(3, 0, 20)}

	plan, err := PlanMove(records, 3, 1, RelationAfter)
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	want := []Assignment{{ID: 3, ParentID: nil, SortOrder: 5}}
	if diff := cmp.Diff(want, plan.Assignments); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanMove_RenumbersWhenNoSlot(t *testing.T) {
	records := []models.MenuRecord{rec(10, 0, 0), rec(11, 0, 1), rec(12, 0, 2), rec(20, 0, 3), rec(13, 20, 0)}

	plan, err := PlanMove(records, 13, 10, RelationAfter)
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	want := []Assignment{
		{ID: 13, ParentID: nil, SortOrder: 1},
		{ID: 11, ParentID: nil, SortOrder: 2},
		{ID: 12, ParentID: nil, SortOrder: 3},
		{ID: 20, ParentID: nil, SortOrder: 4},
	}
	if diff := cmp.Diff(want, plan.Assignments); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanMove_RenumbersEqualSortOrders(t *testing.T) {
	records := []models.MenuRecord{rec(1, 0, 0), rec(2, 0, 0), rec(3, 0, 0)}

	plan, err := PlanMove(records, 3, 2, RelationBefore)
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	res := Build(applyAssignments(records, plan.Assignments))
	if got := res.Forest.RootIDs(); !slices.Equal(got, []int64{1, 3, 2}) {
		t.Errorf("roots = %v, want [1 3 2]", got)
	}
}

func TestPlanMove_CycleRejected(t *testing.T) {
	// A(1) -> B(2) -> C(3)
	records := []models.MenuRecord{rec(1, 0, 0), rec(2, 1, 0), rec(3, 2, 0)}

	cases := []struct {
		name     string
		src, tgt int64
		rel      Relation
	}{
		{"ancestor into grandchild", 1, 3, RelationInside},
		{"ancestor into child", 1, 2, RelationInside},
		{"ancestor beside grandchild", 1, 3, RelationBefore},
		{"into itself", 2, 2, RelationInside},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := PlanMove(records, tc.src, tc.tgt, tc.rel)
			if !errors.Is(err, apperr.ErrCycle) {
				t.Fatalf("err = %v, want ErrCycle", err)
			}
			if len(plan.Ops) != 0 {
				t.Errorf("ops = %v, want none", plan.Ops)
			}
		})
	}
}

func TestPlanMove_DescendantMayMoveUp(t *testing.T) {
	records := []models.MenuRecord{rec(1, 0, 0), rec(2, 1, 0), rec(3, 2, 0)}
	plan, err := PlanMove(records, 3, 1, RelationInside)
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	want := []Assignment{{ID: 3, ParentID: models.Int64Ptr(1), SortOrder: 1}}
	if diff := cmp.Diff(want, plan.Assignments); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanMove_NotFound(t *testing.T) {
	records := []models.MenuRecord{rec(1, 0, 0)}
	if _, err := PlanMove(records, 9, 1, RelationInside); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing source err = %v, want ErrNotFound", err)
	}
	if _, err := PlanMove(records, 1, 9, RelationInside); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing target err = %v, want ErrNotFound", err)
	}
}

func TestPlanMove_NoOp(t *testing.T) {
	plan, err := PlanMove([]models.MenuRecord{rec(1, 0, 0)}, 1, 1, RelationNoOp)
	if err != nil || len(plan.Ops) != 0 {
		t.Errorf("plan = %+v, err = %v; want empty plan", plan, err)
	}
}

func TestPlanMove_BesideAnomalyLandsAtTopLevel(t *testing.T) {
	records := []models.MenuRecord{rec(1, 0, 0), rec(2, 77, 5), rec(3, 1, 0)}
	plan, err := PlanMove(records, 3, 2, RelationAfter)
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	if plan.Assignments[0].ParentID != nil {
		t.Errorf("parent = %v, want top level", *plan.Assignments[0].ParentID)
	}
	res := Build(applyAssignments(records, plan.Assignments))
	if got := res.Forest.RootIDs(); !slices.Equal(got, []int64{1, 2, 3}) {
		t.Errorf("roots = %v, want [1 2 3]", got)
	}
}

// TestPlanMove_ReproducesIntendedOrder checks every before/after move inside a
// crowded sibling group: after applying the plan, sorting by sort order gives
// exactly the order the user dropped into.
func TestPlanMove_ReproducesIntendedOrder(t *testing.T) {
	records := []models.MenuRecord{
		rec(1, 0, 0),
		rec(10, 1, 0), rec(11, 1, 1), rec(12, 1, 1), rec(13, 1, 5), rec(14, 1, 6), rec(15, 1, 20),
		rec(2, 0, 1), rec(20, 2, 3),
	}
	group := func(recs []models.MenuRecord) []int64 {
		return Build(recs).Forest.Find(1).ChildIDs()
	}
	base := group(records)

	sources := []int64{10, 11, 12, 13, 14, 15, 20}
	for _, src := range sources {
		for _, tgt := range base {
			if src == tgt {
				continue
			}
			for _, rel := range []Relation{RelationBefore, RelationAfter} {
				plan, err := PlanMove(records, src, tgt, rel)
				if err != nil {
					t.Fatalf("PlanMove(%d, %d, %s): %v", src, tgt, rel, err)
				}

				want := slices.DeleteFunc(slices.Clone(base), func(id int64) bool { return id == src })
				at := slices.Index(want, tgt)
				if rel == RelationAfter {
					at++
				}
				want = slices.Insert(want, at, src)

				if got := group(applyAssignments(records, plan.Assignments)); !slices.Equal(got, want) {
					t.Errorf("PlanMove(%d, %d, %s): order = %v, want %v", src, tgt, rel, got, want)
				}
			}
		}
	}
}

func TestCheckCycle_FollowsRenderedParents(t *testing.T) {
	// 1 and 2 point at each other; Build renders 1 at top level with 2 below.
	records := []models.MenuRecord{rec(1, 2, 0), rec(2, 1, 0), rec(3, 0, 0)}
	if err := CheckCycle(records, 3, 1); err != nil {
		t.Errorf("CheckCycle(3, 1) = %v, want nil", err)
	}
	if err := CheckCycle(records, 2, 1); err != nil {
		t.Errorf("CheckCycle(2, 1) = %v, want nil: 2 renders below 1", err)
	}
	if err := CheckCycle(records, 1, 2); !errors.Is(err, apperr.ErrCycle) {
		t.Errorf("CheckCycle(1, 2) = %v, want ErrCycle", err)
	}
}

func TestPlanMove_BesideCycleBreakLandsAtTopLevel(t *testing.T) {
	records := []models.MenuRecord{rec(1, 2, 0), rec(2, 1, 0), rec(3, 0, 5)}
	before := Build(records)
	if got := before.Forest.RootIDs(); !slices.Equal(got, []int64{1, 3}) {
		t.Fatalf("roots = %v, want [1 3]", got)
	}

	plan, err := PlanMove(records, 3, 1, RelationAfter)
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	if p := plan.Assignments[0].ParentID; p != nil {
		t.Fatalf("parent = %d, want top level", *p)
	}
	after := Build(applyAssignments(records, plan.Assignments))
	if got := after.Forest.RootIDs(); !slices.Equal(got, []int64{1, 3}) {
		t.Errorf("roots = %v, want [1 3]", got)
	}

	plan, err = PlanMove(records, 3, 1, RelationBefore)
	if err != nil {
		t.Fatalf("PlanMove: %v", err)
	}
	after = Build(applyAssignments(records, plan.Assignments))
	if got := after.Forest.RootIDs(); !slices.Equal(got, []int64{3, 1}) {
		t.Errorf("roots = %v, want [3 1]", got)
	}
}

func TestPlanMove_InsideCycleBreakRoot(t *testing.T) {
	records := []models.MenuRecord{rec(1, 2, 0), rec(2, 1, 0), rec(3, 0, 5)}

	plan, err := PlanMove(records, 2, 1, RelationInside)
	if err != nil {
		t.Fatalf("PlanMove(2, 1, inside): %v", err)
	}
	want := []Assignment{{ID: 2, ParentID: models.Int64Ptr(1), SortOrder: 0}}
	if diff := cmp.Diff(want, plan.Assignments); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}

	if _, err := PlanMove(records, 1, 2, RelationInside); !errors.Is(err, apperr.ErrCycle) {
		t.Errorf("PlanMove(1, 2, inside) err = %v, want ErrCycle", err)
	}
}

func TestRenderedParents(t *testing.T) {
	records := []models.MenuRecord{
		rec(1, 0, 0), rec(2, 1, 0), rec(3, 3, 0), rec(4, 99, 0), rec(5, 6, 0), rec(6, 5, 0),
	}
	got := RenderedParents(records)
	want := map[int64]*int64{
		1: nil, 2: models.Int64Ptr(1), 3: nil, 4: nil, 5: nil, 6: models.Int64Ptr(5),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parents mismatch (-want +got):\n%s", diff)
	}
}
