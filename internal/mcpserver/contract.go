package mcpserver

// MoveContract describes how menu moves are interpreted so that LLM
// consumers pick the right relation and target.
const MoveContract = `# Menu Move Contract

Menus form a forest. Every record has an optional parent and an integer
sort order; siblings are displayed by ascending sort order, ties by id.

## Relations

- **before**: the menu becomes a sibling of the target, placed directly above it.
- **after**: the menu becomes a sibling of the target, placed directly below it.
- **inside**: the menu becomes the last child of the target.
  Omit ` + "`" + `target_id` + "`" + ` to move the menu to the end of the top level.

Only ` + "`" + `inside` + "`" + ` is valid on the top level container.

## Rules

1. A menu cannot be moved into itself or into any of its descendants.
   Such moves are rejected with a cycle error and nothing is written.
2. Moving a menu onto itself is a no-op.
3. Sort orders of other siblings are renumbered only when no free slot
   exists between the neighbours.
4. Only one move is processed at a time. A busy error means another move
   is in flight; retry after it finishes.
5. Records whose parent is missing or that form a parent cycle are shown at
   top level and listed by ` + "`" + `list_menu_anomalies` + "`" + `. Move them to repair the tree.

## Example

Given roots ` + "`" + `[2] News` + "`" + ` and ` + "`" + `[1] About` + "`" + ` with ` + "`" + `[3] History` + "`" + ` under About,
` + "`" + `move_menu(source_id=3, target_id=2, relation="before")` + "`" + ` yields the
top level order History, News, About.
`
