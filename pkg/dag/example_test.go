package dag_test

import (
	"errors"
	"fmt"

	"github.com/matzehuels/stackforge/pkg/dag"
)

func ExampleDAG_TopoSort() {
	// api depends on handler and model, handler depends on model
	g := dag.New(nil)
	_ = g.AddNode(dag.Node{ID: "api"})
	_ = g.AddNode(dag.Node{ID: "handler"})
	_ = g.AddNode(dag.Node{ID: "model"})
	_ = g.AddEdge(dag.Edge{From: "api", To: "handler"})
	_ = g.AddEdge(dag.Edge{From: "api", To: "model"})
	_ = g.AddEdge(dag.Edge{From: "handler", To: "model"})

	order, _ := g.TopoSort()
	fmt.Println(order)
	// Output:
	// [model handler api]
}

func ExampleDAG_traversal() {
	g := dag.New(nil)
	_ = g.AddNode(dag.Node{ID: "app"})
	_ = g.AddNode(dag.Node{ID: "auth"})
	_ = g.AddNode(dag.Node{ID: "cache"})
	_ = g.AddEdge(dag.Edge{From: "app", To: "auth"})
	_ = g.AddEdge(dag.Edge{From: "app", To: "cache"})

	fmt.Println("Children of app:", g.Children("app"))
	fmt.Println("Parents of auth:", g.Parents("auth"))
	fmt.Println("Out-degree of app:", g.OutDegree("app"))
	// Output:
	// Children of app: [auth cache]
	// Parents of auth: [app]
	// Out-degree of app: 2
}

func ExampleDAG_Validate() {
	g := dag.New(nil)
	_ = g.AddNode(dag.Node{ID: "a"})
	_ = g.AddNode(dag.Node{ID: "b"})
	_ = g.AddNode(dag.Node{ID: "c"})
	_ = g.AddEdge(dag.Edge{From: "a", To: "b"})
	_ = g.AddEdge(dag.Edge{From: "b", To: "c"})
	_ = g.AddEdge(dag.Edge{From: "c", To: "a"})

	err := g.Validate()
	var cycle *dag.CycleError
	if errors.As(err, &cycle) {
		fmt.Println(cycle.Chain)
	}
	fmt.Println(errors.Is(err, dag.ErrGraphHasCycle))
	// Output:
	// [a b c a]
	// true
}

func ExampleDAG_AssignRows() {
	g := dag.New(nil)
	_ = g.AddNode(dag.Node{ID: "api"})
	_ = g.AddNode(dag.Node{ID: "handler"})
	_ = g.AddNode(dag.Node{ID: "model"})
	_ = g.AddEdge(dag.Edge{From: "api", To: "handler"})
	_ = g.AddEdge(dag.Edge{From: "api", To: "model"})
	_ = g.AddEdge(dag.Edge{From: "handler", To: "model"})

	g.AssignRows()
	for i, row := range g.Rows() {
		fmt.Println(i, row)
	}
	// Output:
	// 0 [api]
	// 1 [handler]
	// 2 [model]
}
