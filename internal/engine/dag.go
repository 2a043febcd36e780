package engine

import "sort"

// Node — узел в DAG джобов.
type Node struct {
	// Job — определение джоба.
	Job *Job

	// ID — идентификатор джоба.
	ID string

	// InDegree — количество входящих рёбер (needs).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// DAG — направленный ациклический граф джобов pipeline.
type DAG struct {
	// Nodes — все узлы графа (jobID → Node).
	Nodes map[string]*Node

	// RootNodes — узлы без зависимостей (точки входа).
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	// Порядок детерминирован: при равенстве джобы идут
	// в лексикографическом порядке ID.
	Order []*Node
}

// BuildDAG строит DAG из определения pipeline.
func BuildDAG(def *Definition) (*DAG, error) {
	dag := &DAG{
		Nodes:     make(map[string]*Node),
		RootNodes: make([]*Node, 0),
	}

	// Первый проход: создаём узлы в отсортированном порядке,
	// чтобы обход был воспроизводимым.
	ids := make([]string, 0, len(def.Jobs))
	for id := range def.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		dag.Nodes[id] = &Node{
			Job:        def.Jobs[id],
			ID:         id,
			DependsOn:  make([]*Node, 0),
			Dependents: make([]*Node, 0),
		}
	}

	// Второй проход: связываем узлы по needs.
	for _, id := range ids {
		node := dag.Nodes[id]
		for _, dep := range node.Job.Needs {
			depNode, exists := dag.Nodes[dep]
			if !exists {
				return nil, NewValidationError(id, "needs",
					"needs unknown job: "+dep, ErrMissingDependency)
			}
			dag.addEdge(depNode, node)
		}
	}

	dag.findRootNodes(ids)

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// addEdge добавляет ребро между узлами.
// Дубликаты игнорируются, чтобы не завышать InDegree.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return // уже связаны
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// findRootNodes находит узлы без входящих рёбер.
// ids должен быть отсортирован — тогда и RootNodes отсортирован.
func (d *DAG) findRootNodes(ids []string) {
	d.RootNodes = make([]*Node, 0)
	for _, id := range ids {
		if d.Nodes[id].InDegree == 0 {
			d.RootNodes = append(d.RootNodes, d.Nodes[id])
		}
	}
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	// Копируем inDegree, чтобы не модифицировать оригинал.
	inDegree := make(map[string]int)
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := make([]*Node, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Node, 0, len(d.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		// Освободившиеся узлы добавляем в отсортированном порядке,
		// чтобы итоговый Order был детерминированным.
		ready := make([]*Node, 0)
		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
		queue = append(queue, ready...)
	}

	// Если не все узлы обработаны — есть цикл.
	if len(order) != len(d.Nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// GetReadyNodes возвращает джобы, готовые к выполнению.
//
// Джоб готов, если:
// - Все его needs завершены успешно (в succeeded)
// - Сам джоб ещё не запускался (не в started)
//
// succeeded — map jobID → true для успешно завершённых джобов.
// started — map jobID → true для уже запущенных (или завершённых) джобов.
func (d *DAG) GetReadyNodes(succeeded, started map[string]bool) []*Node {
	if succeeded == nil {
		succeeded = make(map[string]bool)
	}
	if started == nil {
		started = make(map[string]bool)
	}

	ready := make([]*Node, 0)

	for _, node := range d.Order {
		if started[node.ID] {
			continue
		}

		allDepsSucceeded := true
		for _, dep := range node.DependsOn {
			if !succeeded[dep.ID] {
				allDepsSucceeded = false
				break
			}
		}

		if allDepsSucceeded {
			ready = append(ready, node)
		}
	}

	return ready
}

// GetNode возвращает узел по ID джоба.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество джобов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

// Downstream возвращает все джобы, прямо или транзитивно зависящие
// от данного. Используется, чтобы пометить их ячейки пропущенными,
// когда джоб упал.
func (d *DAG) Downstream(id string) []*Node {
	start, exists := d.Nodes[id]
	if !exists {
		return nil
	}

	visited := make(map[string]bool)
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, dep := range n.Dependents {
			if visited[dep.ID] {
				continue
			}
			visited[dep.ID] = true
			walk(dep)
		}
	}
	walk(start)

	// Возвращаем в детерминированном порядке Order.
	out := make([]*Node, 0, len(visited))
	for _, node := range d.Order {
		if visited[node.ID] {
			out = append(out, node)
		}
	}
	return out
}
