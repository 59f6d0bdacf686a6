package recognize

// Prompt instructs the model to answer with bare LaTeX.
const Prompt = `Recognize the mathematical formula in this image and return only its LaTeX code.

Requirements:
1. Output the LaTeX code only. No explanation, no $ or $$ delimiters, no code fences.
2. Use \frac{}{} for fractions and \sqrt{} for roots.
3. Use ^{} for superscripts and _{} for subscripts.
4. Use standard commands for Greek letters, e.g. \alpha, \beta, \pi.
5. Use pmatrix or bmatrix environments for matrices.
6. Use \int, \sum and \prod with their limits for integrals, sums and products.
7. For multi-line formulas, separate lines with \\ and align with &.
8. Keep the original structure and layout of the formula.`
